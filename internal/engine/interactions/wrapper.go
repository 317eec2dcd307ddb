package interactions

import (
	"pixsim-server/internal/domain"

	"gopkg.in/yaml.v3"
)

// BuildFunc строит эффект из сырого конфига контента.
// Вызывается ОДИН раз при загрузке мира: вся валидация конфига
// происходит здесь, а не в момент исполнения.
type BuildFunc func(interactionID string, raw *yaml.Node) (EffectFunc, error)

// TypedBuildFunc - "чистый" строитель, работающий с готовой структурой C.
type TypedBuildFunc[C any] func(cfg C) EffectFunc

// WithConfig берет типизированный строитель и превращает его в BuildFunc.
// Берет на себя Unmarshal и Validate (как WithPayload у хендлеров команд).
func WithConfig[C any](build TypedBuildFunc[C]) BuildFunc {
	return func(interactionID string, raw *yaml.Node) (EffectFunc, error) {
		var cfg C

		// 1. Распаковка YAML (nil-узел = конфиг по умолчанию)
		if raw != nil && raw.Kind != 0 {
			if err := raw.Decode(&cfg); err != nil {
				return nil, &domain.InvalidConfigError{InteractionID: interactionID, Reason: err.Error()}
			}
		}

		// 2. Автоматическая валидация, если конфиг её реализует
		if v, ok := any(cfg).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, &domain.InvalidConfigError{InteractionID: interactionID, Reason: err.Error()}
			}
		}

		// 3. Сборка чистого эффекта
		return build(cfg), nil
	}
}

// WithoutConfig - обертка для типов без конфига.
func WithoutConfig(effect EffectFunc) BuildFunc {
	return func(_ string, _ *yaml.Node) (EffectFunc, error) {
		return effect, nil
	}
}
