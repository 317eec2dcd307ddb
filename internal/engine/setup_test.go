package engine

import (
	"context"
	"testing"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine/interactions"
	"pixsim-server/internal/infrastructure/storage"

	"github.com/stretchr/testify/require"
)

// Общие фикстуры интеграционных тестов сервиса.
// Юнит-тесты нормализатора и программ держат свои миры у себя.

// fortWorld - turn-based мир: глобальный тикер не нужен,
// время двигается только явным AdvanceTurn.
func fortWorld() *domain.GameWorld {
	return &domain.GameWorld{
		ID:            "fort",
		Name:          "Test Fort",
		TurnBased:     true,
		TurnSeconds:   1800,
		StartLocation: "yard",
		SchemaVersion: 1,
		RelationshipTiers: []domain.TierThreshold{
			{ID: "stranger", MinAffinity: 0},
			{ID: "acquaintance", MinAffinity: 20},
			{ID: "friend", MinAffinity: 50},
			{ID: "confidant", MinAffinity: 80},
		},
		IntimacyLevels: []domain.IntimacyPredicate{
			{ID: "distant", MinAffinity: 0, MaxTension: domain.ScalarMax},
			{ID: "familiar", MinAffinity: 30, MinTrust: 20, MaxTension: 70},
		},
		NPCs: []*domain.NPC{
			{ID: "vex", Name: "Vex", LocationID: "yard", Roles: []string{"guard"}, Mood: "neutral"},
			{ID: "rook", Name: "Rook", LocationID: "hall", Roles: []string{"cook"}, Mood: "neutral"},
		},
	}
}

// fortRegistry - реестр с тестовыми типами эффектов:
// bond (+60 affinity), ping (+1 affinity, кулдаун задает контент).
func fortRegistry(t *testing.T, raws ...interactions.RawDefinition) *interactions.Registry {
	t.Helper()
	r := interactions.NewRegistry()
	r.RegisterType("bond", interactions.WithoutConfig(func(ctx interactions.Context) (*domain.SessionDelta, error) {
		return &domain.SessionDelta{
			Relationships: map[string]domain.RelationshipDelta{ctx.NPC.ID: {Affinity: 60}},
			TouchNPC:      ctx.NPC.ID,
		}, nil
	}))
	r.RegisterType("ping", interactions.WithoutConfig(func(ctx interactions.Context) (*domain.SessionDelta, error) {
		return &domain.SessionDelta{
			Relationships: map[string]domain.RelationshipDelta{ctx.NPC.ID: {Affinity: 1}},
			TouchNPC:      ctx.NPC.ID,
		}, nil
	}))
	for _, raw := range raws {
		require.NoError(t, r.Add(raw))
	}
	return r
}

func fortProgram() *ProgramDefinition {
	return &ProgramDefinition{
		ID:    "patrol_talk",
		Mode:  "conversation",
		Start: "intro",
		Nodes: []*ProgramNode{
			{ID: "intro", Kind: "say", Text: "Vex leans on the wall.", Next: "ask"},
			{ID: "ask", Kind: "branch", Text: "So?",
				Choices: []Choice{
					{ID: "joke", Text: "Crack a joke", Next: "laugh"},
					{ID: "leave", Text: "Walk away", Next: "outro"},
				}},
			{ID: "laugh", Kind: "effect", Next: "outro",
				Effect: &domain.SessionDelta{
					Relationships: map[string]domain.RelationshipDelta{
						FocusNPCKey: {Affinity: 4},
					},
				}},
			{ID: "outro", Kind: "end", Text: "The patrol moves on."},
		},
	}
}

func newFortService(t *testing.T, registry *interactions.Registry, store *storage.Store) *GameService {
	t.Helper()
	svc, err := NewService(NewConfig(), []*domain.GameWorld{fortWorld()},
		registry, []*ProgramDefinition{fortProgram()}, store)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)
	return svc
}

func createFortSession(t *testing.T, svc *GameService) string {
	t.Helper()
	view, err := svc.CreateSession(context.Background(), "fort")
	require.NoError(t, err)
	return view.ID
}
