package interactions

import (
	"errors"

	"pixsim-server/internal/domain"
)

// ChatConfig - обычный разговор. Медленный, надежный рост отношений.
type ChatConfig struct {
	Affinity        float64 `yaml:"affinity"`
	Trust           float64 `yaml:"trust"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

func (c ChatConfig) Validate() error {
	if c.DurationSeconds < 0 {
		return errors.New("duration_seconds cannot be negative")
	}
	return nil
}

func BuildChat(cfg ChatConfig) EffectFunc {
	// Дефолты для пустого конфига
	if cfg.Affinity == 0 {
		cfg.Affinity = 2
	}
	if cfg.Trust == 0 {
		cfg.Trust = 1
	}
	if cfg.DurationSeconds == 0 {
		cfg.DurationSeconds = 300
	}

	return func(ctx Context) (*domain.SessionDelta, error) {
		return &domain.SessionDelta{
			Relationships: map[string]domain.RelationshipDelta{
				ctx.NPC.ID: {Affinity: cfg.Affinity, Trust: cfg.Trust},
			},
			TouchNPC:         ctx.NPC.ID,
			AdvanceWorldTime: cfg.DurationSeconds,
		}, nil
	}
}
