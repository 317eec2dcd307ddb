package interactions

import (
	"errors"

	"pixsim-server/internal/domain"
)

// SceneConfig - запуск нарративной программы (разговор/катсцена).
// Сам эффект только ссылается на программу; машину состояний ведет
// рантайм сессии уже ПОСЛЕ коммита дельты.
type SceneConfig struct {
	Program         string  `yaml:"program"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

func (c SceneConfig) Validate() error {
	if c.Program == "" {
		return errors.New("scene requires a program id")
	}
	return nil
}

func BuildScene(cfg SceneConfig) EffectFunc {
	return func(ctx Context) (*domain.SessionDelta, error) {
		return &domain.SessionDelta{
			TouchNPC:         ctx.NPC.ID,
			AdvanceWorldTime: cfg.DurationSeconds,
			BeginProgram:     cfg.Program,
		}, nil
	}
}
