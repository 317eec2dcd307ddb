package interactions

import (
	"encoding/json"

	"pixsim-server/internal/domain"
)

// Context передает эффекту состояние мира на момент оценки.
// Session - это СНАПШОТ: эффект не мутирует его, а возвращает дельту.
// Так эффект остается чистой трансформацией и его можно безопасно
// пересчитать при ретрае конфликта коммита.
type Context struct {
	Session *domain.GameSession
	World   *domain.GameWorld
	NPC     *domain.NPC

	// Payload - произвольные данные вызова от клиента (может быть пустым).
	Payload json.RawMessage
}

// EffectFunc - контракт эффекта взаимодействия.
type EffectFunc func(ctx Context) (*domain.SessionDelta, error)

// Requires - декларативные предусловия по отношениям и флагам.
// Нулевые значения означают "не проверять".
type Requires struct {
	MinAffinity  float64  `yaml:"min_affinity"`
	MinTrust     float64  `yaml:"min_trust"`
	MinChemistry float64  `yaml:"min_chemistry"`
	MaxTension   float64  `yaml:"max_tension"` // 0 = без ограничения
	TierIn       []string `yaml:"tier_in"`
	FlagsSet     []string `yaml:"flags_set"`
	FlagsClear   []string `yaml:"flags_clear"`
}

// Definition - готовое к исполнению определение взаимодействия.
// Собирается один раз при загрузке контента и дальше неизменно.
type Definition struct {
	ID       string
	Type     string
	Category string

	// Locations - где доступно. Пустой список = в любой локации.
	Locations []string

	// RequiredRoles - роли, которые должны быть у целевого NPC.
	RequiredRoles []string

	// CooldownSeconds - в СИМУЛИРОВАННЫХ секундах.
	CooldownSeconds float64

	// Слагаемые скоринга (см. gating.go в engine).
	Urgency      float64
	MoodAffinity map[string]float64

	Requires Requires

	// NPCInitiated - планировщик может исполнить это от лица NPC
	// (приветствие при входе игрока в локацию и т.п.).
	NPCInitiated bool

	effect EffectFunc
}

// Effect исполняет эффект определения.
func (d *Definition) Effect(ctx Context) (*domain.SessionDelta, error) {
	return d.effect(ctx)
}

// AvailableAt - проверка локации (пустой список = везде).
func (d *Definition) AvailableAt(locationID string) bool {
	if len(d.Locations) == 0 {
		return true
	}
	for _, l := range d.Locations {
		if l == locationID {
			return true
		}
	}
	return false
}

// Validator - конфиг типа взаимодействия может реализовать его,
// чтобы получить автоматическую проверку при загрузке.
type Validator interface {
	Validate() error
}
