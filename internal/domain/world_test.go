package domain

import (
	"errors"
	"testing"
)

func validWorld() *GameWorld {
	return &GameWorld{
		ID:            "town",
		SchemaVersion: 1,
		RelationshipTiers: []TierThreshold{
			{ID: "stranger", MinAffinity: 0},
			{ID: "friend", MinAffinity: 50},
		},
		IntimacyLevels: []IntimacyPredicate{
			{ID: "distant", MinAffinity: 0, MaxTension: 100},
			{ID: "warm", MinAffinity: 40, MinTrust: 30, MaxTension: 60},
		},
	}
}

func TestValidateSchemas_OK(t *testing.T) {
	if err := validWorld().ValidateSchemas(); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}
}

func TestValidateSchemas_NotMonotonic(t *testing.T) {
	w := validWorld()
	w.RelationshipTiers = []TierThreshold{
		{ID: "friend", MinAffinity: 50},
		{ID: "stranger", MinAffinity: 0}, // нарушен порядок
	}
	err := w.ValidateSchemas()
	var sve *SchemaValidationError
	if !errors.As(err, &sve) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
}

func TestValidateSchemas_DuplicateID(t *testing.T) {
	w := validWorld()
	w.IntimacyLevels = append(w.IntimacyLevels, IntimacyPredicate{ID: "warm", MinAffinity: 90})
	var sve *SchemaValidationError
	if !errors.As(w.ValidateSchemas(), &sve) {
		t.Fatal("duplicate intimacy id must be rejected")
	}
}

func TestSession_ModeStack(t *testing.T) {
	s := NewSession("s1", "town", "square")

	s.PushMode(ModeState{Mode: ModeConversation, FocusNPC: "mira"})
	if s.Mode.Mode != ModeConversation {
		t.Fatalf("expected CONVERSATION, got %s", s.Mode.Mode)
	}

	restored := s.PopMode()
	if restored.Mode != ModeMap || restored.LocationID != "square" {
		t.Fatalf("prior mode not restored: %+v", restored)
	}

	// Двойной поп не должен паниковать и не должен ничего менять
	again := s.PopMode()
	if again.Mode != ModeMap {
		t.Fatalf("pop on empty stack changed mode: %+v", again)
	}
}

func TestSession_SnapshotIsolation(t *testing.T) {
	s := NewSession("s1", "town", "square")
	s.Relationship("mira").Affinity = 10
	s.Flags["met_mira"] = true

	snap := s.Snapshot()
	snap.Relationship("mira").Affinity = 99
	snap.Flags["met_mira"] = false

	if s.Relationship("mira").Affinity != 10 {
		t.Error("snapshot mutation leaked into session relationships")
	}
	if s.Flags["met_mira"] != true {
		t.Error("snapshot mutation leaked into session flags")
	}
}

func TestRelationshipDelta_Clamp(t *testing.T) {
	r := NewRelationshipState()
	r.Apply(RelationshipDelta{Affinity: 150, Tension: -20})
	if r.Affinity != ScalarMax {
		t.Errorf("affinity not clamped: %f", r.Affinity)
	}
	if r.Tension != ScalarMin {
		t.Errorf("tension not clamped: %f", r.Tension)
	}
}
