package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine/interactions"
	"pixsim-server/internal/infrastructure/storage"
	"pixsim-server/internal/network"
	"pixsim-server/pkg/api"
	"pixsim-server/pkg/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GameService - фасад движка. Держит контент (миры, взаимодействия,
// программы), хаб событий, стор и по одному рантайму на живую сессию.
// Вся публичная поверхность делегирует операции писателю сессии.
type GameService struct {
	cfg Config

	worlds   map[string]*domain.GameWorld
	registry *interactions.Registry
	programs map[string]*ProgramDefinition

	Hub   *network.Hub
	store *storage.Store

	normalizer *Normalizer
	gate       *Gatekeeper

	mu       sync.RWMutex
	runtimes map[string]*SessionRuntime

	tickStop chan struct{}
	tickDone chan struct{}
}

// NewService собирает движок из загруженного контента.
// Схемы миров валидируются здесь: сломанный контент не стартует.
// store может быть nil (in-memory режим для тестов).
func NewService(cfg Config, worlds []*domain.GameWorld, registry *interactions.Registry,
	programs []*ProgramDefinition, store *storage.Store) (*GameService, error) {

	svc := &GameService{
		cfg:        cfg,
		worlds:     make(map[string]*domain.GameWorld, len(worlds)),
		registry:   registry,
		programs:   make(map[string]*ProgramDefinition, len(programs)),
		Hub:        network.NewHub(),
		store:      store,
		normalizer: NewNormalizer(),
		runtimes:   make(map[string]*SessionRuntime),
	}
	svc.gate = &Gatekeeper{Registry: registry, Normalizer: svc.normalizer}

	for _, w := range worlds {
		if w.ID == "" {
			return nil, fmt.Errorf("world without id")
		}
		if _, dup := svc.worlds[w.ID]; dup {
			return nil, fmt.Errorf("duplicate world id %q", w.ID)
		}
		if w.HasSchema() {
			if err := w.ValidateSchemas(); err != nil {
				return nil, err
			}
		}
		svc.worlds[w.ID] = w
	}

	for _, p := range programs {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := svc.programs[p.ID]; dup {
			return nil, fmt.Errorf("duplicate program id %q", p.ID)
		}
		svc.programs[p.ID] = p
	}

	logger.Log.WithFields(logrus.Fields{
		"worlds":       len(svc.worlds),
		"interactions": registry.Len(),
		"programs":     len(svc.programs),
	}).Info("Game service initialized")
	return svc, nil
}

// Start запускает глобальный тик-драйвер real-time миров и поднимает
// рантаймы неархивных сессий из стора.
func (svc *GameService) Start() error {
	if svc.store != nil {
		ids, err := svc.store.ListSessionIDs()
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		for _, id := range ids {
			if _, err := svc.resume(id); err != nil {
				logger.WithSession(id).WithError(err).Warn("Could not resume session")
			}
		}
		logger.Log.WithField("count", len(ids)).Info("Sessions resumed")
	}

	svc.tickStop = make(chan struct{})
	svc.tickDone = make(chan struct{})
	go svc.tickLoop()
	return nil
}

// tickLoop - глобальный драйвер: раз в TickRate подкидывает тик каждому
// real-time рантайму. TimeScale переводит wall-время в симулированное.
func (svc *GameService) tickLoop() {
	defer close(svc.tickDone)
	ticker := time.NewTicker(svc.cfg.TickRate)
	defer ticker.Stop()

	simDelta := svc.cfg.TickRate.Seconds() * svc.cfg.TimeScale

	for {
		select {
		case <-ticker.C:
			svc.mu.RLock()
			for _, rt := range svc.runtimes {
				if rt.world.TurnBased {
					continue
				}
				rt.tryEnqueue("tick", func(rt *SessionRuntime) (any, error) {
					return nil, rt.opTick(simDelta)
				})
			}
			svc.mu.RUnlock()

		case <-svc.tickStop:
			return
		}
	}
}

// Stop останавливает драйвер и писателей. Сессии персистятся, но НЕ
// архивируются: рестарт сервера их поднимает обратно.
func (svc *GameService) Stop() {
	if svc.tickStop != nil {
		close(svc.tickStop)
		<-svc.tickDone
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for id, rt := range svc.runtimes {
		// Финальный персист: сессия остается неархивной,
		// рестарт сервера поднимет её обратно.
		_, _ = rt.do(context.Background(), "final_persist", func(rt *SessionRuntime) (any, error) {
			rt.persist()
			return nil, nil
		})
		rt.Stop()
		delete(svc.runtimes, id)
	}
	logger.Log.Info("Game service stopped")
}

// --- SESSION API ---

// CreateSession создает сессию в указанном мире и запускает её писателя.
func (svc *GameService) CreateSession(ctx context.Context, worldID string) (*api.SessionView, error) {
	world, ok := svc.worlds[worldID]
	if !ok {
		return nil, domain.ErrUnknownWorld
	}

	s := domain.NewSession(uuid.NewString(), worldID, world.StartLocation)

	svc.mu.Lock()
	rt := newSessionRuntime(svc, world, s)
	svc.runtimes[s.ID] = rt
	svc.mu.Unlock()
	go rt.Run()

	// Первый персист внутри писателя: тикер уже мог добраться до сессии.
	val, err := rt.do(ctx, "create", func(rt *SessionRuntime) (any, error) {
		rt.persist()
		return sessionView(rt.session.Snapshot()), nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithSession(s.ID).WithField("world_id", worldID).Info("Session created")
	return val.(*api.SessionView), nil
}

// LoadSession возвращает снапшот сессии (поднимая её из стора при нужде).
func (svc *GameService) LoadSession(ctx context.Context, sessionID string) (*api.SessionView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	return svc.snapshotView(ctx, rt)
}

// ArchiveSession останавливает писателя и помечает сессию архивной.
// Запись остается в сторе навсегда.
func (svc *GameService) ArchiveSession(ctx context.Context, sessionID string) error {
	svc.mu.Lock()
	rt, ok := svc.runtimes[sessionID]
	if ok {
		delete(svc.runtimes, sessionID)
	}
	svc.mu.Unlock()

	if ok {
		// Финальный персист внутри писателя, до остановки.
		_, _ = rt.do(ctx, "archive", func(rt *SessionRuntime) (any, error) {
			rt.session.Archived = true
			rt.persist()
			return nil, nil
		})
		rt.Stop()
	}
	svc.normalizer.InvalidateSession(sessionID)

	if svc.store != nil {
		if err := svc.store.ArchiveSession(sessionID); err != nil {
			return err
		}
	} else if !ok {
		return domain.ErrUnknownSession
	}
	logger.WithSession(sessionID).Info("Session archived")
	return nil
}

// ListAvailableInteractions - гейтинг + скоринг для локации.
func (svc *GameService) ListAvailableInteractions(ctx context.Context, sessionID, locationID string) ([]api.AvailableView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "list_available", func(rt *SessionRuntime) (any, error) {
		snap := rt.session.Snapshot()
		list := svc.gate.ListAvailable(rt.world, snap, locationID)
		out := make([]api.AvailableView, 0, len(list))
		for _, a := range list {
			out = append(out, api.AvailableView{
				InteractionID: a.Def.ID,
				NPCID:         a.NPC.ID,
				NPCName:       a.NPC.Name,
				Category:      a.Def.Category,
				Score:         a.Score,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]api.AvailableView), nil
}

// ExecuteInteraction исполняет взаимодействие и возвращает снапшот
// сессии после коммита.
func (svc *GameService) ExecuteInteraction(ctx context.Context, sessionID string, p api.ExecutePayload) (*api.SessionView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "execute", func(rt *SessionRuntime) (any, error) {
		if _, err := rt.opExecute(p); err != nil {
			return nil, err
		}
		return sessionView(rt.session.Snapshot()), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.SessionView), nil
}

// AdvanceTurn двигает turn-based мир на один ход.
func (svc *GameService) AdvanceTurn(ctx context.Context, sessionID string) (*api.SessionView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "advance_turn", func(rt *SessionRuntime) (any, error) {
		if err := rt.opAdvanceTurn(); err != nil {
			return nil, err
		}
		return sessionView(rt.session.Snapshot()), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.SessionView), nil
}

// GetRelationshipState возвращает нормализованное состояние отношений.
func (svc *GameService) GetRelationshipState(ctx context.Context, sessionID, npcID string) (*api.RelationshipView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "get_relationship", func(rt *SessionRuntime) (any, error) {
		if rt.world.FindNPC(npcID) == nil {
			return nil, domain.ErrUnknownNPC
		}
		rel, err := svc.normalizer.Normalize(rt.world, rt.session, npcID)
		if err != nil {
			return nil, err
		}
		v := relationshipView(npcID, rel)
		return &v, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.RelationshipView), nil
}

// --- НАРРАТИВНЫЕ ПРОГРАММЫ ---

func (svc *GameService) BeginProgram(ctx context.Context, sessionID string, p api.BeginProgramPayload) (*api.TransitionView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "begin_program", func(rt *SessionRuntime) (any, error) {
		if rt.world.FindNPC(p.NPCID) == nil {
			return nil, domain.ErrUnknownNPC
		}
		res, err := rt.beginProgram(p.ProgramID, p.NPCID, p.Seq)
		if err != nil {
			return nil, err
		}
		return transitionView(res), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.TransitionView), nil
}

func (svc *GameService) Choose(ctx context.Context, sessionID string, p api.ChoicePayload) (*api.TransitionView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "choose", func(rt *SessionRuntime) (any, error) {
		res, err := rt.opChoose(p)
		if err != nil {
			return nil, err
		}
		return transitionView(res), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.TransitionView), nil
}

func (svc *GameService) AbortProgram(ctx context.Context, sessionID string, p api.AbortPayload) (*api.TransitionView, error) {
	rt, err := svc.runtimeFor(sessionID)
	if err != nil {
		return nil, err
	}
	val, err := rt.do(ctx, "abort_program", func(rt *SessionRuntime) (any, error) {
		res, err := rt.opAbort(p.Reason, p.Seq)
		if err != nil {
			return nil, err
		}
		return transitionView(res), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.TransitionView), nil
}

// --- WORLD META API ---

// GetRelationshipSchema отдает схему ступеней отношений мира.
// Fail closed: сломанная схема возвращает ошибку, а не дефолты.
func (svc *GameService) GetRelationshipSchema(worldID string, version int) (*api.SchemaView, error) {
	world, err := svc.schemaWorld(worldID, version)
	if err != nil {
		return nil, err
	}
	tiers, err := json.Marshal(world.RelationshipTiers)
	if err != nil {
		return nil, err
	}
	return &api.SchemaView{WorldID: worldID, Version: world.SchemaVersion, Tiers: tiers}, nil
}

// GetIntimacySchema отдает схему уровней близости мира.
func (svc *GameService) GetIntimacySchema(worldID string, version int) (*api.SchemaView, error) {
	world, err := svc.schemaWorld(worldID, version)
	if err != nil {
		return nil, err
	}
	levels, err := json.Marshal(world.IntimacyLevels)
	if err != nil {
		return nil, err
	}
	return &api.SchemaView{WorldID: worldID, Version: world.SchemaVersion, Levels: levels}, nil
}

func (svc *GameService) schemaWorld(worldID string, version int) (*domain.GameWorld, error) {
	world, ok := svc.worlds[worldID]
	if !ok {
		return nil, domain.ErrUnknownWorld
	}
	if err := world.ValidateSchemas(); err != nil {
		return nil, err
	}
	// version=0 - "текущая"; запрошенная старая версия недоступна:
	// мир хранит только актуальную схему.
	if version != 0 && version != world.SchemaVersion {
		return nil, &domain.SchemaValidationError{WorldID: worldID, Version: version,
			Reason: fmt.Sprintf("only version %d is available", world.SchemaVersion)}
	}
	return world, nil
}

// EventsSince - догоняющее чтение журнала событий для подписчиков.
func (svc *GameService) EventsSince(sessionID string, afterSeq uint64) ([]api.Event, error) {
	if svc.store == nil {
		return nil, nil
	}
	return svc.store.EventsSince(sessionID, afterSeq)
}

// World возвращает контент мира по id.
func (svc *GameService) World(worldID string) (*domain.GameWorld, bool) {
	w, ok := svc.worlds[worldID]
	return w, ok
}

// --- ВНУТРЕННЕЕ ---

// runtimeFor возвращает писателя сессии, поднимая её из стора при нужде.
func (svc *GameService) runtimeFor(sessionID string) (*SessionRuntime, error) {
	svc.mu.RLock()
	rt, ok := svc.runtimes[sessionID]
	svc.mu.RUnlock()
	if ok {
		return rt, nil
	}
	return svc.resume(sessionID)
}

// resume поднимает сессию из стора и запускает писателя.
func (svc *GameService) resume(sessionID string) (*SessionRuntime, error) {
	if svc.store == nil {
		return nil, domain.ErrUnknownSession
	}
	s, err := svc.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Archived {
		return nil, domain.ErrSessionArchived
	}
	world, ok := svc.worlds[s.WorldID]
	if !ok {
		return nil, domain.ErrUnknownWorld
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	// Гонка двойного подъема: проигравший отдает уже созданный рантайм.
	if rt, ok := svc.runtimes[sessionID]; ok {
		return rt, nil
	}
	rt := newSessionRuntime(svc, world, s)
	svc.runtimes[sessionID] = rt
	go rt.Run()
	logger.WithSession(sessionID).Info("Session resumed from store")
	return rt, nil
}

func (svc *GameService) snapshotView(ctx context.Context, rt *SessionRuntime) (*api.SessionView, error) {
	val, err := rt.do(ctx, "snapshot", func(rt *SessionRuntime) (any, error) {
		return sessionView(rt.session.Snapshot()), nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*api.SessionView), nil
}

// --- View-мапперы ---

func sessionView(s *domain.GameSession) *api.SessionView {
	v := &api.SessionView{
		ID:        s.ID,
		WorldID:   s.WorldID,
		WorldTime: s.WorldTime,
		Mode:      string(s.Mode.Mode),
		Location:  s.Mode.LocationID,
		FocusNPC:  s.Mode.FocusNPC,
		Flags:     s.Flags,
		Stats:     s.Stats,
		Archived:  s.Archived,
		Seq:       s.Seq,
	}
	if len(s.Relationships) > 0 {
		v.Relations = make(map[string]api.RelationshipView, len(s.Relationships))
		for npcID, rel := range s.Relationships {
			v.Relations[npcID] = relationshipView(npcID, rel)
		}
	}
	return v
}

func relationshipView(npcID string, rel *domain.RelationshipState) api.RelationshipView {
	return api.RelationshipView{
		NPCID:           npcID,
		Affinity:        rel.Affinity,
		Trust:           rel.Trust,
		Chemistry:       rel.Chemistry,
		Tension:         rel.Tension,
		TierID:          rel.TierID,
		IntimacyLevelID: rel.IntimacyLevelID,
		IsNormalized:    rel.IsNormalized,
	}
}

func transitionView(res TransitionResult) *api.TransitionView {
	v := &api.TransitionView{
		ProgramID: res.ProgramID,
		Seq:       res.Seq,
		From:      string(res.From),
		To:        string(res.To),
		Text:      res.Text,
	}
	for _, c := range res.Choices {
		v.Choices = append(v.Choices, api.ChoiceView{ID: c.ID, Text: c.Text})
	}
	return v
}
