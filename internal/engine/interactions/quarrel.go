package interactions

import (
	"pixsim-server/internal/domain"
)

// QuarrelConfig - ссора. Поднимает tension, роняет affinity.
// Полезна контенту как "клапан": открывает ветки примирения.
type QuarrelConfig struct {
	Tension  float64 `yaml:"tension"`
	Affinity float64 `yaml:"affinity"` // обычно отрицательная
	Flag     string  `yaml:"flag"`     // флаг "в ссоре с X"
}

func BuildQuarrel(cfg QuarrelConfig) EffectFunc {
	if cfg.Tension == 0 {
		cfg.Tension = 10
	}
	if cfg.Affinity == 0 {
		cfg.Affinity = -5
	}

	return func(ctx Context) (*domain.SessionDelta, error) {
		d := &domain.SessionDelta{
			Relationships: map[string]domain.RelationshipDelta{
				ctx.NPC.ID: {Tension: cfg.Tension, Affinity: cfg.Affinity},
			},
			TouchNPC:         ctx.NPC.ID,
			AdvanceWorldTime: 180,
		}
		if cfg.Flag != "" {
			d.SetFlags = map[string]any{cfg.Flag + "." + ctx.NPC.ID: true}
		}
		return d, nil
	}
}
