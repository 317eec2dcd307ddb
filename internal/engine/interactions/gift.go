package interactions

import (
	"errors"
	"fmt"

	"pixsim-server/internal/domain"
)

// GiftConfig - подарок. Стоит золота, заметно двигает affinity/chemistry.
type GiftConfig struct {
	Item      string  `yaml:"item"`
	Cost      float64 `yaml:"cost"`
	Affinity  float64 `yaml:"affinity"`
	Chemistry float64 `yaml:"chemistry"`
}

func (c GiftConfig) Validate() error {
	if c.Item == "" {
		return errors.New("gift requires an item")
	}
	if c.Cost < 0 {
		return errors.New("cost cannot be negative")
	}
	return nil
}

func BuildGift(cfg GiftConfig) EffectFunc {
	if cfg.Affinity == 0 {
		cfg.Affinity = 5
	}

	return func(ctx Context) (*domain.SessionDelta, error) {
		// Проверка по снапшоту: хватает ли золота.
		// Эффект чистый, поэтому проверка повторится при ретрае коммита.
		gold := ctx.Session.Stat(domain.PlayerEntityID, "gold")
		if gold < cfg.Cost {
			return nil, &domain.GatingDeniedError{
				SessionID:     ctx.Session.ID,
				InteractionID: "gift:" + cfg.Item,
				Reason:        fmt.Sprintf("not enough gold: have %.0f, need %.0f", gold, cfg.Cost),
			}
		}

		return &domain.SessionDelta{
			AddStats: map[string]map[string]float64{
				domain.PlayerEntityID: {"gold": -cfg.Cost},
			},
			Relationships: map[string]domain.RelationshipDelta{
				ctx.NPC.ID: {Affinity: cfg.Affinity, Chemistry: cfg.Chemistry},
			},
			SetFlags: map[string]any{
				"gift." + ctx.NPC.ID + "." + cfg.Item: true,
			},
			TouchNPC:         ctx.NPC.ID,
			AdvanceWorldTime: 60,
		}, nil
	}
}
