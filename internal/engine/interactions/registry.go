package interactions

import (
	"fmt"
	"sort"

	"pixsim-server/internal/domain"

	"gopkg.in/yaml.v3"
)

// RawDefinition - определение взаимодействия как его пишет автор контента.
// Поле Type выбирает строителя эффекта, Config - его типизированный конфиг.
type RawDefinition struct {
	ID              string             `yaml:"id"`
	Type            string             `yaml:"type"`
	Category        string             `yaml:"category"`
	Locations       []string           `yaml:"locations"`
	RequiredRoles   []string           `yaml:"required_roles"`
	CooldownSeconds float64            `yaml:"cooldown_seconds"`
	Urgency         float64            `yaml:"urgency"`
	MoodAffinity    map[string]float64 `yaml:"mood_affinity"`
	Requires        Requires           `yaml:"requires"`
	NPCInitiated    bool               `yaml:"npc_initiated"`
	Config          yaml.Node          `yaml:"config"`
}

// Registry хранит типы взаимодействий и собранные определения.
// После загрузки контента - read-only.
type Registry struct {
	builders map[string]BuildFunc
	defs     map[string]*Definition
	ordered  []*Definition // отсортированы по id для воспроизводимости
}

// NewRegistry создает реестр со встроенными типами.
func NewRegistry() *Registry {
	r := &Registry{
		builders: make(map[string]BuildFunc),
		defs:     make(map[string]*Definition),
	}
	r.RegisterType("chat", WithConfig(BuildChat))
	r.RegisterType("gift", WithConfig(BuildGift))
	r.RegisterType("flirt", WithConfig(BuildFlirt))
	r.RegisterType("quarrel", WithConfig(BuildQuarrel))
	r.RegisterType("greet", WithConfig(BuildGreet))
	r.RegisterType("scene", WithConfig(BuildScene))
	return r
}

// RegisterType регистрирует строителя эффекта для типа.
func (r *Registry) RegisterType(name string, build BuildFunc) {
	r.builders[name] = build
}

// Add собирает определение из сырого описания.
// Любая ошибка конфига всплывает здесь, при загрузке, а не на рантайме.
func (r *Registry) Add(raw RawDefinition) error {
	if raw.ID == "" {
		return &domain.InvalidConfigError{InteractionID: "?", Reason: "empty interaction id"}
	}
	if _, dup := r.defs[raw.ID]; dup {
		return &domain.InvalidConfigError{InteractionID: raw.ID, Reason: "duplicate id"}
	}
	build, ok := r.builders[raw.Type]
	if !ok {
		return &domain.InvalidConfigError{InteractionID: raw.ID,
			Reason: fmt.Sprintf("unknown interaction type %q", raw.Type)}
	}

	effect, err := build(raw.ID, &raw.Config)
	if err != nil {
		return err
	}

	def := &Definition{
		ID:              raw.ID,
		Type:            raw.Type,
		Category:        raw.Category,
		Locations:       raw.Locations,
		RequiredRoles:   raw.RequiredRoles,
		CooldownSeconds: raw.CooldownSeconds,
		Urgency:         raw.Urgency,
		MoodAffinity:    raw.MoodAffinity,
		Requires:        raw.Requires,
		NPCInitiated:    raw.NPCInitiated,
		effect:          effect,
	}
	r.defs[def.ID] = def

	// Держим ordered отсортированным по id: детерминированный
	// tie-break скоринга и стабильный порядок обхода.
	idx := sort.Search(len(r.ordered), func(i int) bool { return r.ordered[i].ID >= def.ID })
	r.ordered = append(r.ordered, nil)
	copy(r.ordered[idx+1:], r.ordered[idx:])
	r.ordered[idx] = def
	return nil
}

// Get возвращает определение по id (nil, если нет).
func (r *Registry) Get(id string) *Definition {
	return r.defs[id]
}

// All возвращает определения в порядке возрастания id.
func (r *Registry) All() []*Definition {
	return r.ordered
}

// Len - количество определений.
func (r *Registry) Len() int {
	return len(r.ordered)
}
