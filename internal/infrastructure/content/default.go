package content

import (
	"fmt"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine"
	"pixsim-server/internal/engine/interactions"

	"gopkg.in/yaml.v3"
)

// Default возвращает встроенный демо-контент: два мира (real-time и
// turn-based), базовый набор взаимодействий и одну программу.
// Используется, когда серверу не передали каталог контента.
func Default() *Bundle {
	b := &Bundle{
		Worlds:   defaultWorlds(),
		Registry: interactions.NewRegistry(),
		Programs: defaultPrograms(),
	}
	for _, raw := range defaultInteractions() {
		if err := b.Registry.Add(raw); err != nil {
			// Встроенный контент собирается на этапе разработки;
			// ошибка здесь - баг сборки, а не рантайма.
			panic(fmt.Sprintf("default content: %v", err))
		}
	}
	for _, p := range b.Programs {
		if err := p.Validate(); err != nil {
			panic(fmt.Sprintf("default content: %v", err))
		}
	}
	return b
}

func defaultWorlds() []*domain.GameWorld {
	schemaTiers := []domain.TierThreshold{
		{ID: "stranger", MinAffinity: 0},
		{ID: "acquaintance", MinAffinity: 20},
		{ID: "friend", MinAffinity: 50},
		{ID: "confidant", MinAffinity: 80},
	}
	schemaLevels := []domain.IntimacyPredicate{
		{ID: "distant", MinAffinity: 0, MaxTension: domain.ScalarMax},
		{ID: "familiar", MinAffinity: 30, MinTrust: 20, MaxTension: 70},
		{ID: "close", MinAffinity: 60, MinTrust: 50, MinChemistry: 30, MaxTension: 40},
	}

	return []*domain.GameWorld{
		{
			ID:                "riverside",
			Name:              "Riverside Village",
			StartLocation:     "market",
			BackgroundCadence: 4,
			SchemaVersion:     1,
			RelationshipTiers: schemaTiers,
			IntimacyLevels:    schemaLevels,
			NPCs: []*domain.NPC{
				{ID: "mira", Name: "Mira", LocationID: "market", Roles: []string{"merchant"}, Mood: "neutral"},
				{ID: "theo", Name: "Theo", LocationID: "tavern", Roles: []string{"bard"}, Mood: "cheerful"},
				{ID: "brom", Name: "Old Brom", Roles: []string{"hermit"}, Mood: "neutral"},
			},
		},
		{
			ID:                "garrison",
			Name:              "Northern Garrison",
			TurnBased:         true,
			TurnSeconds:       1800,
			StartLocation:     "yard",
			SchemaVersion:     1,
			RelationshipTiers: schemaTiers,
			IntimacyLevels:    schemaLevels,
			NPCs: []*domain.NPC{
				{ID: "captain", Name: "Captain Hale", LocationID: "yard", Roles: []string{"officer"}, Mood: "neutral"},
				{ID: "quartermaster", Name: "Quartermaster Lys", LocationID: "stores", Roles: []string{"merchant", "officer"}, Mood: "neutral"},
			},
		},
	}
}

func defaultInteractions() []interactions.RawDefinition {
	return []interactions.RawDefinition{
		{
			ID: "chat", Type: "chat", Category: domain.CategorySocial,
			CooldownSeconds: 300,
			MoodAffinity:    map[string]float64{"cheerful": 1, "irritated": -2},
			Config:          configNode(map[string]any{"affinity": 2, "trust": 1, "duration_seconds": 300}),
		},
		{
			ID: "give_rose", Type: "gift", Category: domain.CategoryRomance,
			CooldownSeconds: 3600,
			Config: configNode(map[string]any{
				"item": "rose", "cost": 10, "affinity": 5, "chemistry": 3,
			}),
		},
		{
			ID: "flirt", Type: "flirt", Category: domain.CategoryRomance,
			CooldownSeconds: 600,
			Requires:        interactions.Requires{TierIn: []string{"acquaintance", "friend", "confidant"}},
			MoodAffinity:    map[string]float64{"cheerful": 2, "irritated": -3},
		},
		{
			ID: "quarrel", Type: "quarrel", Category: domain.CategoryConflict,
			CooldownSeconds: 900,
			Config:          configNode(map[string]any{"tension": 10, "affinity": -4, "flag": "quarrel"}),
		},
		{
			ID: "greet", Type: "greet", Category: domain.CategorySocial,
			NPCInitiated:    true,
			CooldownSeconds: 86400, // раз в игровые сутки
		},
		{
			ID: "river_walk", Type: "scene", Category: domain.CategoryRomance,
			Locations:       []string{"market"},
			CooldownSeconds: 7200,
			Requires:        interactions.Requires{TierIn: []string{"friend", "confidant"}, MaxTension: 40},
			Config:          configNode(map[string]any{"program": "walk_by_river"}),
		},
	}
}

func defaultPrograms() []*engine.ProgramDefinition {
	return []*engine.ProgramDefinition{
		{
			ID:    "walk_by_river",
			Mode:  "conversation",
			Start: "intro",
			Nodes: []*engine.ProgramNode{
				{ID: "intro", Kind: "say", Text: "You walk along the river in silence for a while.", Next: "ask"},
				{ID: "ask", Kind: "branch", Text: "Your companion glances at you expectantly.",
					Choices: []engine.Choice{
						{ID: "compliment", Text: "Say something kind", Next: "warm"},
						{ID: "tease", Text: "Tease them a little", Next: "spark"},
					}},
				{ID: "warm", Kind: "effect", Next: "outro",
					Effect: &domain.SessionDelta{
						Relationships: map[string]domain.RelationshipDelta{
							engine.FocusNPCKey: {Affinity: 4, Trust: 2},
						},
					}},
				{ID: "spark", Kind: "effect", Next: "outro",
					Effect: &domain.SessionDelta{
						Relationships: map[string]domain.RelationshipDelta{
							engine.FocusNPCKey: {Chemistry: 5, Tension: 2},
						},
					}},
				{ID: "outro", Kind: "end", Text: "The walk ends by the old bridge."},
			},
		},
	}
}

// configNode превращает go-значение в yaml-узел конфига.
func configNode(v any) yaml.Node {
	data, err := yaml.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("default content config: %v", err))
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("default content config: %v", err))
	}
	if len(doc.Content) == 0 {
		return yaml.Node{}
	}
	return *doc.Content[0]
}
