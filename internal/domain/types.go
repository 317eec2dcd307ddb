package domain

// GameMode - крупнозернистый режим сессии.
// Определяет, что сейчас видит игрок и какие команды имеют смысл.
type GameMode string

const (
	ModeMap          GameMode = "MAP"
	ModeRoom         GameMode = "ROOM"
	ModeCutscene     GameMode = "CUTSCENE"
	ModeConversation GameMode = "CONVERSATION"
)

// SimulationTier - частота обновления NPC планировщиком.
// НЕ путать с tier отношений! Это чисто техническая классификация,
// пересчитывается каждый проход и нигде не сохраняется.
type SimulationTier uint8

const (
	TierActive SimulationTier = iota
	TierBackground
	TierDormant
)

func (t SimulationTier) String() string {
	switch t {
	case TierActive:
		return "active"
	case TierBackground:
		return "background"
	case TierDormant:
		return "dormant"
	default:
		return "unknown"
	}
}

// Категории взаимодействий
const (
	CategorySocial   = "social"
	CategoryRomance  = "romance"
	CategoryConflict = "conflict"
	CategoryService  = "service"
)

// PlayerEntityID - id игрока в статах сессии.
// Игрок один на сессию, поэтому id фиксированный.
const PlayerEntityID = "player"

// Типы событий для внешних подписчиков (HUD, дашборды)
const (
	EventSessionUpdated      = "sessionUpdated"
	EventRelationshipChanged = "relationshipChanged"
	EventModeChanged         = "modeChanged"
	EventProgramTransition   = "narrativeProgramTransition"
)
