package domain

// Границы шкал отношений. Все четыре скаляра живут в [0, 100].
const (
	ScalarMin = 0.0
	ScalarMax = 100.0
)

// RelationshipState - состояние отношений игрока с одним NPC.
// Четыре непрерывные шкалы плюс производная классификация.
//
// Инвариант: TierID/IntimacyLevelID всегда согласованы с текущей версией
// схемы и текущими значениями шкал. Запись в шкалы помечает состояние
// как "грязное" (инвалидация кэша нормализатора), и перед следующим чтением
// классификация пересчитывается.
type RelationshipState struct {
	Affinity  float64 `json:"affinity"`
	Trust     float64 `json:"trust"`
	Chemistry float64 `json:"chemistry"`
	Tension   float64 `json:"tension"`

	// Производные поля. Заполняются нормализатором.
	TierID          string `json:"tierId"`
	IntimacyLevelID string `json:"intimacyLevelId"`

	// IsNormalized: true - классификация получена по настоящей схеме мира,
	// false - схемы не было и использовались встроенные дефолты.
	// Сохраняется для наблюдаемости: внешние тулзы отличают
	// "нет данных" от "посчитано по fallback".
	IsNormalized bool `json:"isNormalized"`

	// LastInteractionWorldTime - симулированное время последнего
	// взаимодействия. Только симулированное, никогда wall-clock:
	// иначе кулдауны ломаются в turn-based мирах.
	LastInteractionWorldTime float64 `json:"lastInteractionWorldTime"`
}

// NewRelationshipState создает нулевое состояние для первого контакта.
func NewRelationshipState() *RelationshipState {
	return &RelationshipState{
		LastInteractionWorldTime: -1, // еще не взаимодействовали
	}
}

// RelationshipDelta - дельта по четырем шкалам. Часть SessionDelta.
type RelationshipDelta struct {
	Affinity  float64 `json:"affinity,omitempty" yaml:"affinity"`
	Trust     float64 `json:"trust,omitempty" yaml:"trust"`
	Chemistry float64 `json:"chemistry,omitempty" yaml:"chemistry"`
	Tension   float64 `json:"tension,omitempty" yaml:"tension"`
}

// IsZero - дельта ничего не меняет.
func (d RelationshipDelta) IsZero() bool {
	return d.Affinity == 0 && d.Trust == 0 && d.Chemistry == 0 && d.Tension == 0
}

// Apply прибавляет дельту с клампом в [ScalarMin, ScalarMax].
func (r *RelationshipState) Apply(d RelationshipDelta) {
	r.Affinity = clamp(r.Affinity + d.Affinity)
	r.Trust = clamp(r.Trust + d.Trust)
	r.Chemistry = clamp(r.Chemistry + d.Chemistry)
	r.Tension = clamp(r.Tension + d.Tension)
}

// Clone возвращает независимую копию (для снапшотов).
func (r *RelationshipState) Clone() *RelationshipState {
	c := *r
	return &c
}

func clamp(v float64) float64 {
	if v < ScalarMin {
		return ScalarMin
	}
	if v > ScalarMax {
		return ScalarMax
	}
	return v
}
