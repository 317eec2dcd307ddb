package domain

// ModeState - режим сессии плюс фокус (на ком/на чем).
// LocationID здесь же: возврат из катсцены должен вернуть и локацию.
type ModeState struct {
	Mode       GameMode `json:"mode"`
	LocationID string   `json:"locationId,omitempty"`
	FocusNPC   string   `json:"focusNpc,omitempty"`
	FocusProg  string   `json:"focusProgram,omitempty"`
}

// GameSession - авторитетная запись одного прохождения.
// Мутируется ИСКЛЮЧИТЕЛЬНО через очередь мутаций рантайма сессии
// (исполнение взаимодействий, планировщик, нарративные программы).
// Внешние вызыватели получают только снапшоты.
type GameSession struct {
	ID      string `json:"id"`
	WorldID string `json:"worldId"`

	// WorldTime - монотонные симулированные секунды.
	// Единственный источник времени для кулдаунов и кадансов.
	WorldTime float64 `json:"worldTime"`

	Flags map[string]any `json:"flags"`

	// Stats: entityID -> имя стата -> значение.
	Stats map[string]map[string]float64 `json:"stats"`

	// Relationships создаются лениво при первом взаимодействии с NPC
	// и живут до конца сессии.
	Relationships map[string]*RelationshipState `json:"relationships"`

	Mode ModeState `json:"mode"`

	// ModeStack - LIFO прежних режимов. Нарративная программа при старте
	// пушит текущий режим, при завершении (или аборте) попает его обратно.
	ModeStack []ModeState `json:"modeStack"`

	Archived bool `json:"archived"`

	// Seq - монотонный счетчик закоммиченных мутаций.
	// Используется для оптимистичного коммита и для нумерации событий.
	Seq uint64 `json:"seq"`
}

// NewSession создает сессию в режиме карты.
func NewSession(id, worldID, startLocation string) *GameSession {
	return &GameSession{
		ID:            id,
		WorldID:       worldID,
		Flags:         make(map[string]any),
		Stats:         make(map[string]map[string]float64),
		Relationships: make(map[string]*RelationshipState),
		Mode:          ModeState{Mode: ModeMap, LocationID: startLocation},
		ModeStack:     make([]ModeState, 0),
	}
}

// Relationship возвращает состояние отношений с NPC, создавая его лениво.
func (s *GameSession) Relationship(npcID string) *RelationshipState {
	r, ok := s.Relationships[npcID]
	if !ok {
		r = NewRelationshipState()
		s.Relationships[npcID] = r
	}
	return r
}

// PushMode сохраняет текущий режим в стек и переключается на новый.
func (s *GameSession) PushMode(next ModeState) {
	s.ModeStack = append(s.ModeStack, s.Mode)
	s.Mode = next
}

// PopMode восстанавливает прежний режим из стека.
// Пустой стек - остаемся как есть (страховка от двойного попа).
func (s *GameSession) PopMode() ModeState {
	if len(s.ModeStack) == 0 {
		return s.Mode
	}
	last := len(s.ModeStack) - 1
	s.Mode = s.ModeStack[last]
	s.ModeStack = s.ModeStack[:last]
	return s.Mode
}

// Stat читает значение стата сущности (0, если нет).
func (s *GameSession) Stat(entityID, name string) float64 {
	if m, ok := s.Stats[entityID]; ok {
		return m[name]
	}
	return 0
}

// AddStat прибавляет к стату сущности.
func (s *GameSession) AddStat(entityID, name string, delta float64) {
	m, ok := s.Stats[entityID]
	if !ok {
		m = make(map[string]float64)
		s.Stats[entityID] = m
	}
	m[name] += delta
}

// FlagFloat читает числовой флаг (yaml/json числа приходят как float64 или int).
func (s *GameSession) FlagFloat(key string) float64 {
	switch v := s.Flags[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// FlagBool - флаг установлен и truthy.
func (s *GameSession) FlagBool(key string) bool {
	switch v := s.Flags[key].(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		return true
	}
}

// Snapshot делает глубокую копию для чтения снаружи.
// Копия отвязана от писателя: её можно спокойно сериализовать.
func (s *GameSession) Snapshot() *GameSession {
	cp := *s
	cp.Flags = make(map[string]any, len(s.Flags))
	for k, v := range s.Flags {
		cp.Flags[k] = v
	}
	cp.Stats = make(map[string]map[string]float64, len(s.Stats))
	for e, m := range s.Stats {
		mm := make(map[string]float64, len(m))
		for k, v := range m {
			mm[k] = v
		}
		cp.Stats[e] = mm
	}
	cp.Relationships = make(map[string]*RelationshipState, len(s.Relationships))
	for id, r := range s.Relationships {
		cp.Relationships[id] = r.Clone()
	}
	cp.ModeStack = make([]ModeState, len(s.ModeStack))
	copy(cp.ModeStack, s.ModeStack)
	return &cp
}
