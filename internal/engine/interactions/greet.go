package interactions

import (
	"pixsim-server/internal/domain"
)

// GreetConfig - приветствие со стороны NPC.
// Исполняется планировщиком от лица NPC (npc_initiated: true в контенте),
// когда игрок оказывается в одной локации с персонажем.
type GreetConfig struct {
	Affinity float64 `yaml:"affinity"`
}

func BuildGreet(cfg GreetConfig) EffectFunc {
	if cfg.Affinity == 0 {
		cfg.Affinity = 1
	}

	return func(ctx Context) (*domain.SessionDelta, error) {
		return &domain.SessionDelta{
			Relationships: map[string]domain.RelationshipDelta{
				ctx.NPC.ID: {Affinity: cfg.Affinity},
			},
			SetFlags: map[string]any{
				"met." + ctx.NPC.ID: true,
			},
			TouchNPC: ctx.NPC.ID,
			// Приветствие не двигает время: оно происходит "внутри" тика.
		}, nil
	}
}
