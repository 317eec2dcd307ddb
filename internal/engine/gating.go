package engine

import (
	"fmt"
	"sort"
	"sync"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine/interactions"
)

// Gatekeeper оценивает доступность взаимодействий и ранжирует их.
// Сам ничего не мутирует: работает по снапшотам сессии.
type Gatekeeper struct {
	Registry   *interactions.Registry
	Normalizer *Normalizer
}

// Available - одно доступное взаимодействие с конкретным NPC и его счет.
type Available struct {
	Def   *interactions.Definition
	NPC   *domain.NPC
	Score float64
}

// Check прогоняет полный предикат доступности для пары (def, npc).
// nil = доступно; иначе GatingDeniedError с причиной.
// Порядок проверок: роли -> локация -> кулдаун -> отношения/флаги.
func (g *Gatekeeper) Check(world *domain.GameWorld, s *domain.GameSession, def *interactions.Definition, npc *domain.NPC, locationID string) error {
	deny := func(reason string) error {
		return &domain.GatingDeniedError{SessionID: s.ID, InteractionID: def.ID, Reason: reason}
	}

	// 1. Роли
	if !npc.HasAllRoles(def.RequiredRoles) {
		return deny(fmt.Sprintf("npc %s lacks required roles", npc.ID))
	}

	// 2. Локация: и взаимодействие, и NPC должны быть здесь
	if !def.AvailableAt(locationID) {
		return deny(fmt.Sprintf("not available at %s", locationID))
	}
	if npc.LocationID != locationID {
		return deny(fmt.Sprintf("npc %s is elsewhere", npc.ID))
	}

	// 3. Кулдаун. ТОЛЬКО симулированное время, никогда wall-clock.
	rel := s.Relationship(npc.ID)
	if def.CooldownSeconds > 0 && rel.LastInteractionWorldTime >= 0 {
		elapsed := s.WorldTime - rel.LastInteractionWorldTime
		if elapsed < def.CooldownSeconds {
			return deny(fmt.Sprintf("cooldown: %.0fs of %.0fs elapsed", elapsed, def.CooldownSeconds))
		}
	}

	// 4. Предусловия по отношениям и флагам
	req := def.Requires
	if req.MinAffinity > 0 && rel.Affinity < req.MinAffinity {
		return deny("affinity too low")
	}
	if req.MinTrust > 0 && rel.Trust < req.MinTrust {
		return deny("trust too low")
	}
	if req.MinChemistry > 0 && rel.Chemistry < req.MinChemistry {
		return deny("chemistry too low")
	}
	if req.MaxTension > 0 && rel.Tension > req.MaxTension {
		return deny("tension too high")
	}
	if len(req.TierIn) > 0 {
		norm, err := g.Normalizer.Normalize(world, s, npc.ID)
		if err != nil {
			return err // сломанная схема всплывает как есть
		}
		found := false
		for _, tier := range req.TierIn {
			if tier == norm.TierID {
				found = true
				break
			}
		}
		if !found {
			return deny(fmt.Sprintf("tier %s not in allowed set", norm.TierID))
		}
	}
	for _, f := range req.FlagsSet {
		if !s.FlagBool(f) {
			return deny(fmt.Sprintf("flag %s not set", f))
		}
	}
	for _, f := range req.FlagsClear {
		if s.FlagBool(f) {
			return deny(fmt.Sprintf("flag %s is set", f))
		}
	}

	return nil
}

// Score считает взвешенный счет:
// relationshipBonus + moodCompatibility + categoryPreference + urgency.
func (g *Gatekeeper) Score(s *domain.GameSession, def *interactions.Definition, npc *domain.NPC) float64 {
	rel := s.Relationship(npc.ID)

	relationshipBonus := (rel.Affinity + rel.Trust) / 20.0
	if def.Category == domain.CategoryRomance {
		relationshipBonus += rel.Chemistry / 20.0
	}

	moodCompatibility := 0.0
	if def.MoodAffinity != nil {
		moodCompatibility = def.MoodAffinity[npc.Mood]
	}

	// Предпочтения категории хранятся во флагах сессии: "pref.social" и т.п.
	categoryPreference := s.FlagFloat("pref." + def.Category)

	return relationshipBonus + moodCompatibility + categoryPreference + def.Urgency
}

// ListAvailable возвращает доступные взаимодействия в локации,
// отсортированные по убыванию счета; равные счета - по возрастанию id
// (воспроизводимый порядок для тестов).
//
// Оценка по NPC распараллеливается; записей в сессию нет - только чтение
// снапшота, результаты сливаются в один срез перед сортировкой.
func (g *Gatekeeper) ListAvailable(world *domain.GameWorld, s *domain.GameSession, locationID string) []Available {
	var npcs []*domain.NPC
	for _, npc := range world.NPCs {
		if npc.LocationID == locationID {
			npcs = append(npcs, npc)
		}
	}
	if len(npcs) == 0 {
		return nil
	}

	// Ленивое создание записей отношений - ДО форка горутин,
	// чтобы параллельная оценка не писала в мапу сессии.
	for _, npc := range npcs {
		s.Relationship(npc.ID)
	}

	perNPC := make([][]Available, len(npcs))
	var wg sync.WaitGroup
	for i, npc := range npcs {
		wg.Add(1)
		go func(i int, npc *domain.NPC) {
			defer wg.Done()
			var out []Available
			for _, def := range g.Registry.All() {
				if def.NPCInitiated {
					continue // инициативы NPC не предлагаются игроку
				}
				if g.Check(world, s, def, npc, locationID) != nil {
					continue
				}
				out = append(out, Available{Def: def, NPC: npc, Score: g.Score(s, def, npc)})
			}
			perNPC[i] = out
		}(i, npc)
	}
	wg.Wait()

	var result []Available
	for _, part := range perNPC {
		result = append(result, part...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		if result[i].Def.ID != result[j].Def.ID {
			return result[i].Def.ID < result[j].Def.ID
		}
		return result[i].NPC.ID < result[j].NPC.ID
	})
	return result
}
