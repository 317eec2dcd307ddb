package domain

import "fmt"

// TierThreshold - одна ступень схемы отношений.
// Список ступеней упорядочен автором контента; при равных MinAffinity
// выигрывает та, что объявлена ПОЗЖЕ (более специфичные определения в конце).
type TierThreshold struct {
	ID          string  `json:"id" yaml:"id"`
	MinAffinity float64 `json:"minAffinity" yaml:"min_affinity"`
}

// IntimacyPredicate - уровень близости. В отличие от tier, требует
// одновременного выполнения нескольких условий по всем четырем шкалам.
type IntimacyPredicate struct {
	ID           string  `json:"id" yaml:"id"`
	MinAffinity  float64 `json:"minAffinity" yaml:"min_affinity"`
	MinTrust     float64 `json:"minTrust" yaml:"min_trust"`
	MinChemistry float64 `json:"minChemistry" yaml:"min_chemistry"`
	MaxTension   float64 `json:"maxTension" yaml:"max_tension"`
}

// GameWorld - контент мира. Принадлежит авторам, на рантайме read-only.
// SchemaVersion участвует в ключе кэша нормализатора: бамп версии
// автоматически инвалидирует все закэшированные классификации.
type GameWorld struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// TurnBased: true - мир двигается только по явному AdvanceTurn,
	// false - мир тикает глобальным драйвером.
	TurnBased bool `json:"turnBased" yaml:"turn_based"`

	// StartLocation - локация, в которой появляются новые сессии.
	StartLocation string `json:"startLocation" yaml:"start_location"`

	// TurnSeconds - сколько симулированных секунд проходит за один ход.
	TurnSeconds float64 `json:"turnSeconds" yaml:"turn_seconds"`

	// BackgroundCadence - background-NPC обновляются каждый N-й тик.
	BackgroundCadence int `json:"backgroundCadence" yaml:"background_cadence"`

	SchemaVersion     int                 `json:"schemaVersion" yaml:"schema_version"`
	RelationshipTiers []TierThreshold     `json:"relationshipTiers" yaml:"relationship_tiers"`
	IntimacyLevels    []IntimacyPredicate `json:"intimacyLevels" yaml:"intimacy_levels"`

	NPCs []*NPC `json:"npcs" yaml:"npcs"`
}

// HasSchema сообщает, есть ли у мира авторская схема отношений.
// Если её нет, нормализатор уходит в дефолты и ставит isNormalized=false.
func (w *GameWorld) HasSchema() bool {
	return len(w.RelationshipTiers) > 0
}

// ValidateSchemas проверяет корректность схем.
// Пороговые значения должны быть неубывающими, id - уникальными.
// Сломанная схема блокирует нормализацию всего мира до исправления.
func (w *GameWorld) ValidateSchemas() error {
	seen := make(map[string]bool)
	prev := -1.0
	for i, t := range w.RelationshipTiers {
		if t.ID == "" {
			return &SchemaValidationError{WorldID: w.ID, Version: w.SchemaVersion,
				Reason: fmt.Sprintf("relationship tier #%d has empty id", i)}
		}
		if seen[t.ID] {
			return &SchemaValidationError{WorldID: w.ID, Version: w.SchemaVersion,
				Reason: fmt.Sprintf("duplicate relationship tier id %q", t.ID)}
		}
		seen[t.ID] = true
		if i > 0 && t.MinAffinity < prev {
			return &SchemaValidationError{WorldID: w.ID, Version: w.SchemaVersion,
				Reason: fmt.Sprintf("tier thresholds not monotonically ordered at %q", t.ID)}
		}
		prev = t.MinAffinity
	}

	seen = make(map[string]bool)
	prev = -1.0
	for i, p := range w.IntimacyLevels {
		if p.ID == "" {
			return &SchemaValidationError{WorldID: w.ID, Version: w.SchemaVersion,
				Reason: fmt.Sprintf("intimacy level #%d has empty id", i)}
		}
		if seen[p.ID] {
			return &SchemaValidationError{WorldID: w.ID, Version: w.SchemaVersion,
				Reason: fmt.Sprintf("duplicate intimacy level id %q", p.ID)}
		}
		seen[p.ID] = true
		if i > 0 && p.MinAffinity < prev {
			return &SchemaValidationError{WorldID: w.ID, Version: w.SchemaVersion,
				Reason: fmt.Sprintf("intimacy thresholds not monotonically ordered at %q", p.ID)}
		}
		prev = p.MinAffinity
	}
	return nil
}

// FindNPC возвращает NPC мира по id (nil, если не найден).
func (w *GameWorld) FindNPC(id string) *NPC {
	for _, n := range w.NPCs {
		if n.ID == id {
			return n
		}
	}
	return nil
}
