package api

import "encoding/json"

// --- СЕРВЕР -> КЛИЕНТ ---

// Event - событие для внешних подписчиков (HUD, дашборды).
// Доставка at-least-once: Seq позволяет потребителю дедуплицировать.
type Event struct {
	Type      string `json:"type"` // sessionUpdated | relationshipChanged | modeChanged | narrativeProgramTransition
	SessionID string `json:"sessionId"`
	Seq       uint64 `json:"seq"`

	NPCID     string `json:"npcId,omitempty"`
	ProgramID string `json:"programId,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`

	// WorldTime - симулированные секунды на момент события.
	WorldTime float64 `json:"worldTime"`

	// Timestamp - wall-clock (Unix ms), только для наблюдаемости.
	// В логике симуляции не участвует.
	Timestamp int64 `json:"timestamp"`
}

// ServerResponse - корневой объект ответа по WebSocket.
type ServerResponse struct {
	// Type: "RESULT" - ответ на команду, "EVENT" - пуш события, "ERROR".
	Type string `json:"type"`

	// RequestID - эхо id команды (для сопоставления ответа запросу).
	RequestID string `json:"requestId,omitempty"`

	Error string `json:"error,omitempty"`

	Event        *Event             `json:"event,omitempty"`
	Session      *SessionView       `json:"session,omitempty"`
	Available    []AvailableView    `json:"available,omitempty"`
	Relationship *RelationshipView  `json:"relationship,omitempty"`
	Transition   *TransitionView    `json:"transition,omitempty"`
	Schema       *SchemaView        `json:"schema,omitempty"`
}

// SessionView - снимок сессии для клиента.
type SessionView struct {
	ID        string                        `json:"id"`
	WorldID   string                        `json:"worldId"`
	WorldTime float64                       `json:"worldTime"`
	Mode      string                        `json:"mode"`
	Location  string                        `json:"location,omitempty"`
	FocusNPC  string                        `json:"focusNpc,omitempty"`
	Flags     map[string]any                `json:"flags,omitempty"`
	Stats     map[string]map[string]float64 `json:"stats,omitempty"`
	Relations map[string]RelationshipView   `json:"relationships,omitempty"`
	Archived  bool                          `json:"archived,omitempty"`
	Seq       uint64                        `json:"seq"`
}

// RelationshipView - состояние отношений с одним NPC.
type RelationshipView struct {
	NPCID           string  `json:"npcId"`
	Affinity        float64 `json:"affinity"`
	Trust           float64 `json:"trust"`
	Chemistry       float64 `json:"chemistry"`
	Tension         float64 `json:"tension"`
	TierID          string  `json:"tierId"`
	IntimacyLevelID string  `json:"intimacyLevelId"`
	IsNormalized    bool    `json:"isNormalized"`
}

// AvailableView - одно доступное взаимодействие после гейтинга и скоринга.
type AvailableView struct {
	InteractionID string  `json:"interactionId"`
	NPCID         string  `json:"npcId"`
	NPCName       string  `json:"npcName"`
	Category      string  `json:"category"`
	Score         float64 `json:"score"`
}

// TransitionView - итог перехода нарративной программы.
type TransitionView struct {
	ProgramID string       `json:"programId"`
	Seq       uint64       `json:"seq"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Text      []string     `json:"text,omitempty"`
	Choices   []ChoiceView `json:"choices,omitempty"`
}

// ChoiceView - вариант на узле ветвления.
type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SchemaView - ответ World Meta API.
type SchemaView struct {
	WorldID string          `json:"worldId"`
	Version int             `json:"version"`
	Tiers   json.RawMessage `json:"tiers,omitempty"`
	Levels  json.RawMessage `json:"levels,omitempty"`
}

// --- КЛИЕНТ -> СЕРВЕР ---

// ClientCommand - корневой объект всех команд клиента.
type ClientCommand struct {
	// RequestID - присваивается клиентом, эхом возвращается в ответе.
	RequestID string `json:"requestId,omitempty"`

	SessionID string `json:"sessionId,omitempty"`

	// Action: SUBSCRIBE, LOAD_SESSION, LIST_INTERACTIONS,
	// EXECUTE_INTERACTION, ADVANCE_TURN, GET_RELATIONSHIP,
	// BEGIN_PROGRAM, CHOOSE, ABORT_PROGRAM.
	Action string `json:"action"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Payloads ---

// ExecutePayload - вызов взаимодействия с NPC.
type ExecutePayload struct {
	InteractionID string          `json:"interactionId"`
	NPCID         string          `json:"npcId"`
	Args          json.RawMessage `json:"args,omitempty"`
}

// ListPayload - запрос доступных взаимодействий в локации.
type ListPayload struct {
	LocationID string `json:"locationId"`
}

// RelationshipPayload - запрос состояния отношений.
type RelationshipPayload struct {
	NPCID string `json:"npcId"`
}

// BeginProgramPayload - явный запуск нарративной программы.
// Seq опционален: ретрай с тем же номером вернет прошлый результат,
// если программа уже запущена (идемпотентность, как у CHOOSE).
type BeginProgramPayload struct {
	ProgramID string `json:"programId"`
	NPCID     string `json:"npcId"`
	Seq       uint64 `json:"seq,omitempty"`
}

// ChoicePayload - ответ на узел ветвления.
// Seq - номер перехода, который клиент запрашивает; ретрай с тем же
// номером безопасен (идемпотентность на стороне движка).
type ChoicePayload struct {
	ChoiceID string `json:"choiceId"`
	Seq      uint64 `json:"seq"`
}

// AbortPayload - явная отмена программы.
// Seq опционален и работает как у CHOOSE: дубликат номера
// возвращает прошлый результат без повторных эффектов.
type AbortPayload struct {
	Reason string `json:"reason"`
	Seq    uint64 `json:"seq,omitempty"`
}
