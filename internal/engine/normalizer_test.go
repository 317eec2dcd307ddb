package engine

import (
	"errors"
	"testing"

	"pixsim-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorld() *domain.GameWorld {
	return &domain.GameWorld{
		ID:            "town",
		SchemaVersion: 1,
		RelationshipTiers: []domain.TierThreshold{
			{ID: "stranger", MinAffinity: 0},
			{ID: "friend", MinAffinity: 50},
		},
		IntimacyLevels: []domain.IntimacyPredicate{
			{ID: "distant", MinAffinity: 0, MaxTension: 100},
			{ID: "warm", MinAffinity: 40, MinTrust: 30, MaxTension: 60},
		},
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	n := NewNormalizer()
	w := testWorld()
	s := domain.NewSession("s1", "town", "square")
	s.Relationship("mira").Affinity = 42
	s.Relationship("mira").Trust = 35

	first, err := n.Normalize(w, s, "mira")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := n.Normalize(w, s, "mira")
		require.NoError(t, err)
		assert.Equal(t, first.TierID, again.TierID)
		assert.Equal(t, first.IntimacyLevelID, again.IntimacyLevelID)
	}
	assert.True(t, first.IsNormalized)
}

func TestNormalize_TierScenario(t *testing.T) {
	// Сценарий из контракта: affinity=0 -> stranger, +60 -> friend.
	n := NewNormalizer()
	w := testWorld()
	s := domain.NewSession("s1", "town", "square")

	rel, err := n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.Equal(t, "stranger", rel.TierID)

	rel.Apply(domain.RelationshipDelta{Affinity: 60})
	n.Invalidate("s1", "mira")

	rel, err = n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.Equal(t, "friend", rel.TierID)
}

func TestNormalize_Monotonic(t *testing.T) {
	// Рост affinity при фиксированных прочих шкалах
	// никогда не понижает ранг tier.
	n := NewNormalizer()
	w := testWorld()
	s := domain.NewSession("s1", "town", "square")

	rank := func(id string) int {
		for i, tier := range w.RelationshipTiers {
			if tier.ID == id {
				return i
			}
		}
		return -1
	}

	prev := -1
	for aff := 0.0; aff <= 100; aff += 5 {
		s.Relationship("mira").Affinity = aff
		n.Invalidate("s1", "mira")
		rel, err := n.Normalize(w, s, "mira")
		require.NoError(t, err)
		cur := rank(rel.TierID)
		assert.GreaterOrEqual(t, cur, prev, "affinity %f lowered tier", aff)
		prev = cur
	}
}

func TestNormalize_TieBreakLaterDeclaration(t *testing.T) {
	n := NewNormalizer()
	w := testWorld()
	// Два порога с одинаковым minAffinity - выигрывает объявленный позже.
	w.RelationshipTiers = []domain.TierThreshold{
		{ID: "stranger", MinAffinity: 0},
		{ID: "rival", MinAffinity: 50},
		{ID: "friend", MinAffinity: 50},
	}
	s := domain.NewSession("s1", "town", "square")
	s.Relationship("mira").Affinity = 75

	rel, err := n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.Equal(t, "friend", rel.TierID)
}

func TestNormalize_IntimacyFallback(t *testing.T) {
	n := NewNormalizer()
	w := testWorld()
	// tension выше MaxTension обоих уровней, кроме distant
	s := domain.NewSession("s1", "town", "square")
	r := s.Relationship("mira")
	r.Affinity = 90
	r.Trust = 90
	r.Tension = 80 // warm требует <= 60

	rel, err := n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.Equal(t, "distant", rel.IntimacyLevelID)
}

func TestNormalize_NoSchemaUsesDefaults(t *testing.T) {
	n := NewNormalizer()
	w := &domain.GameWorld{ID: "bare"} // мир без схемы
	s := domain.NewSession("s1", "bare", "square")
	s.Relationship("mira").Affinity = 55

	rel, err := n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.False(t, rel.IsNormalized)
	assert.Equal(t, "friend", rel.TierID) // встроенный дефолт 50
}

func TestNormalize_BrokenSchemaFailsClosed(t *testing.T) {
	n := NewNormalizer()
	w := testWorld()
	w.RelationshipTiers[0], w.RelationshipTiers[1] = w.RelationshipTiers[1], w.RelationshipTiers[0]

	s := domain.NewSession("s1", "town", "square")
	_, err := n.Normalize(w, s, "mira")

	var sve *domain.SchemaValidationError
	require.True(t, errors.As(err, &sve), "expected SchemaValidationError, got %v", err)
}

func TestNormalize_SchemaVersionBumpInvalidates(t *testing.T) {
	n := NewNormalizer()
	w := testWorld()
	s := domain.NewSession("s1", "town", "square")
	s.Relationship("mira").Affinity = 60

	rel, err := n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.Equal(t, "friend", rel.TierID)

	// Автор поднял порог friend и бампнул версию - кэш обязан протухнуть.
	w.RelationshipTiers[1].MinAffinity = 70
	w.SchemaVersion = 2

	rel, err = n.Normalize(w, s, "mira")
	require.NoError(t, err)
	assert.Equal(t, "stranger", rel.TierID)
}
