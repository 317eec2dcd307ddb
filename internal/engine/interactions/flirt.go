package interactions

import (
	"errors"

	"pixsim-server/internal/domain"
)

// FlirtConfig - флирт. При достаточной взаимности растит chemistry,
// при низкой affinity вместо этого растит tension (неловкость).
type FlirtConfig struct {
	Chemistry float64 `yaml:"chemistry"`
	Backfire  float64 `yaml:"backfire_tension"`

	// AffinityFloor - ниже этого значения флирт "не заходит".
	AffinityFloor float64 `yaml:"affinity_floor"`
}

func (c FlirtConfig) Validate() error {
	if c.Backfire < 0 {
		return errors.New("backfire_tension cannot be negative")
	}
	return nil
}

func BuildFlirt(cfg FlirtConfig) EffectFunc {
	if cfg.Chemistry == 0 {
		cfg.Chemistry = 4
	}
	if cfg.Backfire == 0 {
		cfg.Backfire = 6
	}
	if cfg.AffinityFloor == 0 {
		cfg.AffinityFloor = 25
	}

	return func(ctx Context) (*domain.SessionDelta, error) {
		rel := ctx.Session.Relationship(ctx.NPC.ID)

		rd := domain.RelationshipDelta{Chemistry: cfg.Chemistry}
		if rel.Affinity < cfg.AffinityFloor {
			rd = domain.RelationshipDelta{Tension: cfg.Backfire, Affinity: -1}
		}

		return &domain.SessionDelta{
			Relationships:    map[string]domain.RelationshipDelta{ctx.NPC.ID: rd},
			TouchNPC:         ctx.NPC.ID,
			AdvanceWorldTime: 120,
		}, nil
	}
}
