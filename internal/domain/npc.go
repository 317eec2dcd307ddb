package domain

// NPC - описание персонажа мира. Контентные данные (имя, роли, стартовая
// локация) задаются автором; Mood и LocationID мутируются симуляцией,
// но только внутри писателя сессии.
type NPC struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	LocationID string   `json:"locationId" yaml:"location"`
	Roles      []string `json:"roles" yaml:"roles"`

	// Mood - текущее настроение ("cheerful", "gloomy", "neutral"...).
	// Участвует в скоринге доступных взаимодействий.
	Mood string `json:"mood" yaml:"mood"`
}

// HasRole проверяет наличие роли у персонажа.
func (n *NPC) HasRole(role string) bool {
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAllRoles - true, если у персонажа есть каждая из требуемых ролей.
// Пустой список требований проходит всегда.
func (n *NPC) HasAllRoles(roles []string) bool {
	for _, r := range roles {
		if !n.HasRole(r) {
			return false
		}
	}
	return true
}
