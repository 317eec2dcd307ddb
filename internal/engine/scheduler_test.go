package engine

import (
	"fmt"
	"testing"

	"pixsim-server/internal/domain"
)

func schedulerWorld(npcCount int) (*domain.GameWorld, *domain.GameSession) {
	w := &domain.GameWorld{ID: "town", TurnBased: true, BackgroundCadence: 2}
	for i := 0; i < npcCount; i++ {
		w.NPCs = append(w.NPCs, &domain.NPC{
			ID:         fmt.Sprintf("npc_%02d", i),
			LocationID: "square",
		})
	}
	s := domain.NewSession("s1", "town", "square")
	return w, s
}

func TestScheduler_TierAssignment(t *testing.T) {
	w, s := schedulerWorld(0)
	sc := NewScheduler(NewConfig())

	here := &domain.NPC{ID: "a", LocationID: "square"}
	elsewhere := &domain.NPC{ID: "b", LocationID: "tavern"}
	nowhere := &domain.NPC{ID: "c"}
	focus := &domain.NPC{ID: "d", LocationID: "tavern"}
	s.Mode.FocusNPC = "d"
	_ = w

	if got := sc.AssignTier(s, here); got != domain.TierActive {
		t.Errorf("same location: expected active, got %s", got)
	}
	if got := sc.AssignTier(s, elsewhere); got != domain.TierBackground {
		t.Errorf("other location: expected background, got %s", got)
	}
	if got := sc.AssignTier(s, nowhere); got != domain.TierDormant {
		t.Errorf("no location: expected dormant, got %s", got)
	}
	if got := sc.AssignTier(s, focus); got != domain.TierActive {
		t.Errorf("narrative focus: expected active, got %s", got)
	}
}

func TestScheduler_FairnessOverTurns(t *testing.T) {
	// Сценарий из контракта: 10 NPC, кэп 4 - за 3 хода каждый
	// обновлен хотя бы раз.
	w, s := schedulerWorld(10)
	cfg := NewConfig()
	cfg.UpdateCap = 4
	sc := NewScheduler(cfg)

	updated := make(map[string]int)
	for turn := 0; turn < 3; turn++ {
		pass := sc.Plan(w, s, true)
		if len(pass.Updates) > 4 {
			t.Fatalf("turn %d: cap violated, %d updates", turn, len(pass.Updates))
		}
		for _, npc := range pass.Updates {
			updated[npc.ID]++
		}
	}

	for _, npc := range w.NPCs {
		if updated[npc.ID] == 0 {
			t.Errorf("npc %s starved over 3 turns", npc.ID)
		}
	}
}

func TestScheduler_DeferredGetPriority(t *testing.T) {
	w, s := schedulerWorld(6)
	cfg := NewConfig()
	cfg.UpdateCap = 4
	sc := NewScheduler(cfg)

	first := sc.Plan(w, s, true)
	if len(first.Deferred) != 2 {
		t.Fatalf("expected 2 deferred, got %d", len(first.Deferred))
	}

	second := sc.Plan(w, s, true)
	// Отложенные npc_04, npc_05 обязаны идти первыми.
	if second.Updates[0].ID != "npc_04" || second.Updates[1].ID != "npc_05" {
		t.Errorf("deferred npcs did not get priority: %s, %s",
			second.Updates[0].ID, second.Updates[1].ID)
	}
}

func TestScheduler_BackgroundCadence(t *testing.T) {
	w, s := schedulerWorld(4)
	w.TurnBased = false
	w.BackgroundCadence = 3
	// Все NPC в другой локации -> background
	for _, npc := range w.NPCs {
		npc.LocationID = "tavern"
	}
	sc := NewScheduler(NewConfig())

	counts := 0
	for i := 0; i < 6; i++ {
		pass := sc.Plan(w, s, false)
		counts += len(pass.Updates)
	}
	// 6 тиков, каданс 3 => 2 прохода по 4 NPC
	if counts != 8 {
		t.Errorf("expected 8 background updates over 6 ticks, got %d", counts)
	}
}

func TestScheduler_TurnAdvanceIgnoresCadence(t *testing.T) {
	w, s := schedulerWorld(4)
	w.BackgroundCadence = 100
	for _, npc := range w.NPCs {
		npc.LocationID = "tavern" // background
	}
	sc := NewScheduler(NewConfig())

	pass := sc.Plan(w, s, true)
	if len(pass.Updates) != 4 {
		t.Errorf("turn advance must update every eligible npc once, got %d", len(pass.Updates))
	}
}

func TestScheduler_StableOrder(t *testing.T) {
	w, s := schedulerWorld(5)
	sc := NewScheduler(NewConfig())

	pass := sc.Plan(w, s, true)
	for i := 1; i < len(pass.Updates); i++ {
		if pass.Updates[i-1].ID >= pass.Updates[i].ID {
			t.Fatalf("unstable order: %s before %s", pass.Updates[i-1].ID, pass.Updates[i].ID)
		}
	}
}
