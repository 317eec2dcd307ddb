package engine

import (
	"sync"

	"pixsim-server/internal/domain"
	"pixsim-server/pkg/logger"
)

// Встроенные дефолтные пороги. Используются ТОЛЬКО когда у мира
// вообще нет схемы; результат помечается isNormalized=false.
// Сломанная схема дефолтами не подменяется - это fail closed.
var defaultTiers = []domain.TierThreshold{
	{ID: "stranger", MinAffinity: 0},
	{ID: "acquaintance", MinAffinity: 20},
	{ID: "friend", MinAffinity: 50},
	{ID: "confidant", MinAffinity: 80},
}

var defaultIntimacy = []domain.IntimacyPredicate{
	{ID: "distant", MinAffinity: 0, MaxTension: domain.ScalarMax},
	{ID: "familiar", MinAffinity: 30, MinTrust: 20, MaxTension: 70},
	{ID: "close", MinAffinity: 60, MinTrust: 50, MinChemistry: 30, MaxTension: 40},
}

type normKey struct {
	sessionID string
	npcID     string
}

type normEntry struct {
	schemaVersion int
	tierID        string
	intimacyID    string
	normalized    bool
}

// Normalizer превращает непрерывные шкалы отношений в дискретную
// классификацию tier/intimacy по схеме мира.
//
// Результаты кэшируются по (sessionID, npcID, schemaVersion).
// Версия схемы хранится в записи кэша: бамп версии делает запись
// устаревшей без явной инвалидации. Запись в шкалы инвалидируется
// явно (Invalidate) в той же мутации, что меняет шкалы.
type Normalizer struct {
	mu    sync.RWMutex
	cache map[normKey]normEntry
}

func NewNormalizer() *Normalizer {
	return &Normalizer{cache: make(map[normKey]normEntry)}
}

// Normalize возвращает состояние отношений с заполненной классификацией.
// Возвращаемое значение - тот же указатель из сессии: вызывать только
// из писателя сессии (или на снапшоте).
func (n *Normalizer) Normalize(world *domain.GameWorld, s *domain.GameSession, npcID string) (*domain.RelationshipState, error) {
	rel := s.Relationship(npcID)

	// Мира или схемы нет - встроенные дефолты, isNormalized=false.
	if world == nil || !world.HasSchema() {
		rel.TierID = classifyTier(defaultTiers, rel.Affinity)
		rel.IntimacyLevelID = classifyIntimacy(defaultIntimacy, rel)
		rel.IsNormalized = false
		return rel, nil
	}

	// Схема есть, но сломана - отказываемся нормализовать.
	if err := world.ValidateSchemas(); err != nil {
		return nil, err
	}

	key := normKey{sessionID: s.ID, npcID: npcID}

	n.mu.RLock()
	entry, ok := n.cache[key]
	n.mu.RUnlock()

	if ok && entry.schemaVersion == world.SchemaVersion {
		rel.TierID = entry.tierID
		rel.IntimacyLevelID = entry.intimacyID
		rel.IsNormalized = entry.normalized
		return rel, nil
	}

	rel.TierID = classifyTier(world.RelationshipTiers, rel.Affinity)
	rel.IntimacyLevelID = classifyIntimacy(world.IntimacyLevels, rel)
	rel.IsNormalized = true

	n.mu.Lock()
	n.cache[key] = normEntry{
		schemaVersion: world.SchemaVersion,
		tierID:        rel.TierID,
		intimacyID:    rel.IntimacyLevelID,
		normalized:    true,
	}
	n.mu.Unlock()

	logger.Log.WithField("npc_id", npcID).Debug("Relationship normalized")
	return rel, nil
}

// Invalidate сбрасывает кэш для перечисленных NPC сессии.
// Вызывается в той же мутации, что изменила шкалы: устаревшее чтение
// после инвалидации - это баг корректности, а не допустимая гонка.
func (n *Normalizer) Invalidate(sessionID string, npcIDs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range npcIDs {
		delete(n.cache, normKey{sessionID: sessionID, npcID: id})
	}
}

// InvalidateSession сбрасывает весь кэш сессии (архивация, рестарт).
func (n *Normalizer) InvalidateSession(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key := range n.cache {
		if key.sessionID == sessionID {
			delete(n.cache, key)
		}
	}
}

// classifyTier: среди порогов с minAffinity <= affinity берем порог
// с НАИБОЛЬШИМ minAffinity; при равенстве выигрывает объявленный позже
// (более специфичные определения в конце схемы).
func classifyTier(tiers []domain.TierThreshold, affinity float64) string {
	best := ""
	bestMin := -1.0
	for _, t := range tiers {
		if t.MinAffinity <= affinity && t.MinAffinity >= bestMin {
			best = t.ID
			bestMin = t.MinAffinity
		}
	}
	if best == "" && len(tiers) > 0 {
		// Affinity ниже самого нижнего порога - берем первый объявленный.
		best = tiers[0].ID
	}
	return best
}

// classifyIntimacy: среди ПОЛНОСТЬЮ выполненных предикатов берем предикат
// с наибольшим minAffinity (позже объявленный выигрывает равенство).
// Ни один не выполнен - самый нижний объявленный уровень.
func classifyIntimacy(levels []domain.IntimacyPredicate, rel *domain.RelationshipState) string {
	if len(levels) == 0 {
		return ""
	}
	best := ""
	bestMin := -1.0
	for _, p := range levels {
		satisfied := rel.Affinity >= p.MinAffinity &&
			rel.Trust >= p.MinTrust &&
			rel.Chemistry >= p.MinChemistry &&
			rel.Tension <= p.MaxTension
		if satisfied && p.MinAffinity >= bestMin {
			best = p.ID
			bestMin = p.MinAffinity
		}
	}
	if best == "" {
		best = levels[0].ID
	}
	return best
}
