package domain

import (
	"errors"
	"fmt"
)

// Сентинелы для ошибок вызывающей стороны (плохой id и т.п.)
var (
	ErrUnknownInteraction = errors.New("unknown interaction")
	ErrUnknownProgram     = errors.New("unknown narrative program")
	ErrUnknownSession     = errors.New("unknown session")
	ErrUnknownWorld       = errors.New("unknown world")
	ErrUnknownNPC         = errors.New("unknown npc")
	ErrUnknownChoice      = errors.New("unknown choice")
	ErrSessionArchived    = errors.New("session archived")
	ErrNotTurnBased       = errors.New("world is not turn-based")

	// ErrConcurrentMutation - транзиентный конфликт: сессия была изменена
	// другой операцией между оценкой эффекта и коммитом.
	// Движок ретраит его ровно один раз, потом отдает наружу.
	ErrConcurrentMutation = errors.New("concurrent session mutation")
)

// SchemaValidationError - схема мира присутствует, но сломана.
// Нормализация по такой схеме запрещена: fail closed, никаких тихих дефолтов.
type SchemaValidationError struct {
	WorldID string
	Version int
	Reason  string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("world %s schema v%d invalid: %s", e.WorldID, e.Version, e.Reason)
}

// GatingDeniedError - предикат доступности не прошел в момент исполнения.
// Это ожидаемая ошибка, не фатальная: клиент показал устаревший список.
type GatingDeniedError struct {
	SessionID     string
	InteractionID string
	Reason        string
}

func (e *GatingDeniedError) Error() string {
	return fmt.Sprintf("interaction %s denied for session %s: %s", e.InteractionID, e.SessionID, e.Reason)
}

// InvalidConfigError - определение взаимодействия сломано.
// На рантайме встречаться не должна: конфиги валидируются при загрузке контента.
type InvalidConfigError struct {
	InteractionID string
	Reason        string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("interaction %s config invalid: %s", e.InteractionID, e.Reason)
}

// InvalidModeTransitionError - попытка пройти по ребру, которого нет
// в машине состояний нарративной программы. Сессия не меняется.
type InvalidModeTransitionError struct {
	ProgramID string
	From      string
	To        string
}

func (e *InvalidModeTransitionError) Error() string {
	return fmt.Sprintf("program %s: transition %s -> %s is not allowed", e.ProgramID, e.From, e.To)
}
