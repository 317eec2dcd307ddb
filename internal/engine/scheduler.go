package engine

import (
	"sort"

	"pixsim-server/internal/domain"
)

// Scheduler раздает NPC уровни симуляции и собирает батч обновлений
// на проход. Сам ничего не исполняет: рантайм сессии забирает план
// и прогоняет обновления внутри писателя.
//
// Состояние планировщика (каданс, карри переполнения) эфемерно
// и нигде не сохраняется.
type Scheduler struct {
	cfg  Config
	tick int

	// carry - NPC, отложенные кэпом на прошлом проходе.
	// Им гарантирован приоритет на следующем (round-robin, без голодания).
	carry []string
}

func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// AssignTier классифицирует NPC для текущего прохода:
//   - в фокусе активной нарративной программы или в локации игрока -> active
//   - в том же мире, но в другой локации -> background
//   - всё прочее -> dormant
func (sc *Scheduler) AssignTier(s *domain.GameSession, npc *domain.NPC) domain.SimulationTier {
	if s.Mode.FocusNPC == npc.ID {
		return domain.TierActive
	}
	if npc.LocationID == s.Mode.LocationID && s.Mode.LocationID != "" {
		return domain.TierActive
	}
	if npc.LocationID != "" {
		return domain.TierBackground
	}
	return domain.TierDormant
}

// Pass - план одного прохода симуляции.
type Pass struct {
	// Updates - NPC на обновление, в порядке допуска (carry раньше новых).
	Updates []*domain.NPC
	// Deferred - отложены кэпом, получат приоритет на следующем проходе.
	Deferred []string
}

// Plan собирает батч прохода.
// turnAdvance=true - явный ход turn-based мира: каждый eligible NPC
// (active+background) ровно один раз, каданс игнорируется.
// turnAdvance=false - реальный тик: background только каждый N-й тик.
func (sc *Scheduler) Plan(world *domain.GameWorld, s *domain.GameSession, turnAdvance bool) Pass {
	sc.tick++

	cadence := world.BackgroundCadence
	if cadence <= 0 {
		cadence = sc.cfg.BackgroundCadence
	}

	// 1. Отбор eligible в стабильном порядке (возрастание id).
	byID := make(map[string]*domain.NPC, len(world.NPCs))
	var eligible []string
	for _, npc := range world.NPCs {
		tier := sc.AssignTier(s, npc)
		switch tier {
		case domain.TierActive:
			// каждый тик
		case domain.TierBackground:
			if !turnAdvance && sc.tick%cadence != 0 {
				continue
			}
		case domain.TierDormant:
			// Turn-based: dormant пропускают ходы полностью.
			// Real-time: редкий интервал, если настроен.
			if turnAdvance || sc.cfg.DormantEvery <= 0 || sc.tick%sc.cfg.DormantEvery != 0 {
				continue
			}
		}
		byID[npc.ID] = npc
		eligible = append(eligible, npc.ID)
	}
	sort.Strings(eligible)

	// 2. Карри вперед: отложенные в прошлый раз идут первыми.
	ordered := make([]string, 0, len(eligible))
	taken := make(map[string]bool, len(eligible))
	for _, id := range sc.carry {
		if _, ok := byID[id]; ok && !taken[id] {
			ordered = append(ordered, id)
			taken[id] = true
		}
	}
	for _, id := range eligible {
		if !taken[id] {
			ordered = append(ordered, id)
		}
	}

	// 3. Кэп честности.
	cap := sc.cfg.UpdateCap
	if cap <= 0 || cap > len(ordered) {
		cap = len(ordered)
	}

	pass := Pass{Updates: make([]*domain.NPC, 0, cap)}
	for _, id := range ordered[:cap] {
		pass.Updates = append(pass.Updates, byID[id])
	}
	pass.Deferred = append(pass.Deferred, ordered[cap:]...)

	sc.carry = pass.Deferred
	return pass
}
