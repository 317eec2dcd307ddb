package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pixsim-server/internal/domain"
	"pixsim-server/internal/engine/interactions"
	"pixsim-server/pkg/api"
	"pixsim-server/pkg/logger"

	"github.com/sirupsen/logrus"
)

// opFunc - одна операция над сессией. Исполняется ТОЛЬКО горутиной Run.
type opFunc func(rt *SessionRuntime) (any, error)

type mutResult struct {
	val any
	err error
}

type mutation struct {
	ctx  context.Context
	name string
	fn   opFunc
	done chan mutResult
}

// SessionRuntime - писатель одной сессии.
// Все мутации (исполнение взаимодействий, тики планировщика, переходы
// нарративных программ) сериализуются через канал mutations: дельты
// применяются строго в порядке допуска, никакого переупорядочивания.
// Операции над разными сессиями друг друга не ждут.
type SessionRuntime struct {
	svc *GameService

	// world - сессионная копия мира: контент (схемы, определения) общий,
	// а NPC склонированы, потому что симуляция двигает их настроение
	// и локацию независимо в каждой сессии.
	world   *domain.GameWorld
	session *domain.GameSession

	sched   *Scheduler
	program *Program // активная нарративная программа (макс. одна)

	mutations chan *mutation
	quit      chan struct{}
	stopped   chan struct{}
}

func newSessionRuntime(svc *GameService, world *domain.GameWorld, s *domain.GameSession) *SessionRuntime {
	// Клонируем NPC: авторский мир остается read-only.
	local := *world
	local.NPCs = make([]*domain.NPC, len(world.NPCs))
	for i, npc := range world.NPCs {
		cp := *npc
		cp.Roles = append([]string(nil), npc.Roles...)
		local.NPCs[i] = &cp
	}

	return &SessionRuntime{
		svc:       svc,
		world:     &local,
		session:   s,
		sched:     NewScheduler(svc.cfg),
		mutations: make(chan *mutation, 64),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Run - цикл писателя. Одна горутина на сессию.
func (rt *SessionRuntime) Run() {
	logger.WithSession(rt.session.ID).Info("Session runtime started")
	defer func() {
		close(rt.stopped)
		// Дренаж: ожидающие мутации получают отказ, а не вечное ожидание.
		for {
			select {
			case m := <-rt.mutations:
				m.done <- mutResult{err: domain.ErrSessionArchived}
			default:
				return
			}
		}
	}()

	for {
		select {
		case m := <-rt.mutations:
			// Отмена возможна ровно до начала исполнения.
			// После коммита отмены нет - только компенсирующий эффект.
			if m.ctx != nil && m.ctx.Err() != nil {
				m.done <- mutResult{err: m.ctx.Err()}
				continue
			}
			val, err := m.fn(rt)
			m.done <- mutResult{val: val, err: err}

		case <-rt.quit:
			return
		}
	}
}

// Stop останавливает писателя (после текущей операции).
func (rt *SessionRuntime) Stop() {
	close(rt.quit)
	<-rt.stopped
}

// do ставит операцию в очередь и ждет результата.
// Порядок допуска в канал определяет порядок применения эффектов.
func (rt *SessionRuntime) do(ctx context.Context, name string, fn opFunc) (any, error) {
	m := &mutation{ctx: ctx, name: name, fn: fn, done: make(chan mutResult, 1)}

	select {
	case rt.mutations <- m:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-rt.stopped:
		return nil, domain.ErrSessionArchived
	}

	res := <-m.done
	return res.val, res.err
}

// tryEnqueue - неблокирующая постановка (для глобального тикера).
// Полная очередь = сессия захлебывается, тик пропускаем: следующий
// принесет накопленную дельту времени.
func (rt *SessionRuntime) tryEnqueue(name string, fn opFunc) bool {
	m := &mutation{ctx: context.Background(), name: name, fn: fn, done: make(chan mutResult, 1)}
	select {
	case rt.mutations <- m:
		go func() { <-m.done }() // результат тика никому не нужен
		return true
	default:
		return false
	}
}

// --- КОММИТ ---

// commit применяет дельту, бампает seq, транзакционно инвалидирует кэш
// нормализатора и эмитит события. Единственная точка записи в сессию.
func (rt *SessionRuntime) commit(delta *domain.SessionDelta) {
	changed := delta.Apply(rt.session)
	rt.session.Seq++

	if len(changed) > 0 {
		// Инвалидация в той же мутации, что изменила шкалы.
		rt.svc.normalizer.Invalidate(rt.session.ID, changed...)
		for _, npcID := range changed {
			// Пересчитываем производные поля сразу: персист и события
			// должны видеть согласованную классификацию.
			if _, err := rt.svc.normalizer.Normalize(rt.world, rt.session, npcID); err != nil {
				logger.WithSession(rt.session.ID).WithError(err).Warn("Normalization failed after delta")
			}
			rt.emit(api.Event{Type: domain.EventRelationshipChanged, NPCID: npcID})
		}
	}

	rt.emit(api.Event{Type: domain.EventSessionUpdated})
	rt.persist()
}

// emit публикует событие подписчикам и в журнал (at-least-once).
func (rt *SessionRuntime) emit(ev api.Event) {
	ev.SessionID = rt.session.ID
	ev.Seq = rt.session.Seq
	ev.WorldTime = rt.session.WorldTime
	ev.Timestamp = time.Now().UnixMilli()

	rt.svc.Hub.Publish(rt.session.ID, ev)
	if rt.svc.store != nil {
		if err := rt.svc.store.AppendEvent(ev); err != nil {
			logger.WithSession(rt.session.ID).WithError(err).Warn("Event journal write failed")
		}
	}
}

func (rt *SessionRuntime) persist() {
	if rt.svc.store == nil {
		return
	}
	if err := rt.svc.store.SaveSession(rt.session); err != nil {
		logger.WithSession(rt.session.ID).WithError(err).Error("Session persist failed")
	}
}

// --- ИСПОЛНЕНИЕ ВЗАИМОДЕЙСТВИЙ ---

// opExecute - полный конвейер execute.
// Гейтинг перепроверяется ЗДЕСЬ, в момент исполнения: список доступного
// у клиента мог устареть. Эффект оценивается на снапшоте; перед коммитом
// проверяется, что сессия не уехала (оптимистичный коммит). Конфликт
// ретраится один раз, затем отдается наружу.
func (rt *SessionRuntime) opExecute(p api.ExecutePayload) (*domain.SessionDelta, error) {
	def := rt.svc.registry.Get(p.InteractionID)
	if def == nil {
		return nil, domain.ErrUnknownInteraction
	}
	npc := rt.world.FindNPC(p.NPCID)
	if npc == nil {
		return nil, domain.ErrUnknownNPC
	}

	attempt := func() (*domain.SessionDelta, error) {
		snap := rt.session.Snapshot()
		baseSeq := snap.Seq

		if err := rt.svc.gate.Check(rt.world, snap, def, npc, snap.Mode.LocationID); err != nil {
			return nil, err
		}

		delta, err := def.Effect(interactionContext(snap, rt.world, npc, p.Args))
		if err != nil {
			return nil, err
		}

		// Эффект чистый: если между снапшотом и коммитом сессия
		// изменилась, дельта могла быть посчитана по устаревшему
		// состоянию - пересчитываем.
		if rt.session.Seq != baseSeq {
			return nil, domain.ErrConcurrentMutation
		}
		return delta, nil
	}

	delta, err := attempt()
	if errors.Is(err, domain.ErrConcurrentMutation) {
		logger.WithSession(rt.session.ID).WithField("interaction", def.ID).
			Warn("Commit conflict, retrying once")
		delta, err = attempt()
	}
	if err != nil {
		return nil, err
	}

	rt.commit(delta)

	// Запуск программы - ПОСЛЕ коммита дельты взаимодействия.
	if delta.BeginProgram != "" {
		if _, err := rt.beginProgram(delta.BeginProgram, npc.ID, 0); err != nil {
			logger.WithSession(rt.session.ID).WithError(err).Warn("Interaction effect could not begin program")
		}
	}
	return delta, nil
}

// --- СИМУЛЯЦИЯ ---

// opTick - один тик real-time мира.
func (rt *SessionRuntime) opTick(deltaSeconds float64) error {
	if rt.world.TurnBased {
		return nil // turn-based миры фоном не тикают
	}
	rt.runPass(deltaSeconds, false)
	return nil
}

// opAdvanceTurn - явный ход turn-based мира.
func (rt *SessionRuntime) opAdvanceTurn() error {
	if !rt.world.TurnBased {
		return domain.ErrNotTurnBased
	}
	turnSeconds := rt.world.TurnSeconds
	if turnSeconds <= 0 {
		turnSeconds = rt.svc.cfg.TurnSeconds
	}
	rt.runPass(turnSeconds, true)
	return nil
}

// runPass двигает время, прогоняет план планировщика и коммитит
// итог одной мутацией.
func (rt *SessionRuntime) runPass(elapsedSeconds float64, turnAdvance bool) {
	rt.session.WorldTime += elapsedSeconds

	pass := rt.sched.Plan(rt.world, rt.session, turnAdvance)

	// Инициатива NPC может задеть отношения с ДРУГИМИ персонажами -
	// собираем полный список измененных, с дедупликацией.
	seen := make(map[string]bool, len(pass.Updates))
	changed := make([]string, 0, len(pass.Updates))
	for _, npc := range pass.Updates {
		for _, id := range rt.updateNPC(npc, elapsedSeconds) {
			if !seen[id] {
				seen[id] = true
				changed = append(changed, id)
			}
		}
	}

	rt.session.Seq++
	if len(changed) > 0 {
		rt.svc.normalizer.Invalidate(rt.session.ID, changed...)
		for _, npcID := range changed {
			if _, err := rt.svc.normalizer.Normalize(rt.world, rt.session, npcID); err != nil {
				logger.WithSession(rt.session.ID).WithError(err).Warn("Normalization failed in pass")
			}
			rt.emit(api.Event{Type: domain.EventRelationshipChanged, NPCID: npcID})
		}
	}
	rt.emit(api.Event{Type: domain.EventSessionUpdated})
	rt.persist()
}

// updateNPC - обновление одного NPC. Возвращает id всех NPC, чьи шкалы
// отношений изменились (инициатива может задеть не только себя).
func (rt *SessionRuntime) updateNPC(npc *domain.NPC, elapsedSeconds float64) []string {
	rel := rt.session.Relationship(npc.ID)
	var changed []string

	// 1. Остывание tension со временем.
	if rel.Tension > 0 && rt.svc.cfg.TensionDecayPerHour > 0 {
		decay := rt.svc.cfg.TensionDecayPerHour * elapsedSeconds / 3600
		if decay > 0 {
			rel.Apply(domain.RelationshipDelta{Tension: -decay})
			changed = append(changed, npc.ID)
		}
	}

	// 2. Настроение выводится из отношений.
	switch {
	case rel.Tension > 60:
		npc.Mood = "irritated"
	case rel.Affinity > 60:
		npc.Mood = "cheerful"
	default:
		if npc.Mood == "irritated" || npc.Mood == "cheerful" {
			npc.Mood = "neutral"
		}
	}

	// 3. Инициатива NPC: если игрок рядом и не занят нарративом,
	// NPC может исполнить npc_initiated взаимодействие (макс. одно за проход).
	if rt.session.Mode.Mode == domain.ModeMap || rt.session.Mode.Mode == domain.ModeRoom {
		if npc.LocationID == rt.session.Mode.LocationID {
			changed = append(changed, rt.runInitiative(npc)...)
		}
	}

	return changed
}

// runInitiative исполняет первое прошедшее гейтинг npc_initiated
// взаимодействие от лица NPC. Возвращает id NPC, чьи отношения
// изменила дельта, - их кэш обязан протухнуть в этой же мутации.
func (rt *SessionRuntime) runInitiative(npc *domain.NPC) []string {
	for _, def := range rt.svc.registry.All() {
		if !def.NPCInitiated {
			continue
		}
		if rt.svc.gate.Check(rt.world, rt.session, def, npc, rt.session.Mode.LocationID) != nil {
			continue
		}
		delta, err := def.Effect(interactionContext(rt.session, rt.world, npc, nil))
		if err != nil {
			continue
		}
		changed := delta.Apply(rt.session)
		logger.WithSession(rt.session.ID).WithFields(logrus.Fields{
			"npc_id":      npc.ID,
			"interaction": def.ID,
		}).Debug("NPC-initiated interaction")
		if delta.BeginProgram != "" {
			if _, err := rt.beginProgram(delta.BeginProgram, npc.ID, 0); err != nil {
				logger.WithSession(rt.session.ID).WithError(err).Warn("NPC initiative could not begin program")
			}
		}
		return changed
	}
	return nil
}

// --- НАРРАТИВНЫЕ ПРОГРАММЫ ---

// beginProgram запускает программу. Активной может быть только одна.
// Ретрай (seq уже применен у той же программы) возвращает прошлый
// результат вместо InvalidModeTransition.
func (rt *SessionRuntime) beginProgram(programID, npcID string, seq uint64) (TransitionResult, error) {
	def, ok := rt.svc.programs[programID]
	if !ok {
		return TransitionResult{}, domain.ErrUnknownProgram
	}
	if rt.program != nil && rt.program.Def.ID == programID && seq != 0 && seq <= rt.program.Seq {
		return rt.program.lastResult, nil
	}
	if rt.program != nil && !rt.program.State.terminal() {
		return TransitionResult{}, &domain.InvalidModeTransitionError{
			ProgramID: programID,
			From:      string(rt.program.State),
			To:        string(ProgramRunning),
		}
	}

	fromMode := rt.session.Mode.Mode
	p := NewProgram(def, npcID)
	res, delta, err := p.Begin(rt.session)
	if err != nil {
		return TransitionResult{}, err
	}
	rt.program = p

	rt.commitTransition(res, delta, fromMode)
	return res, nil
}

// opChoose - ответ на ветвление активной программы.
func (rt *SessionRuntime) opChoose(p api.ChoicePayload) (TransitionResult, error) {
	if rt.program == nil {
		return TransitionResult{}, domain.ErrUnknownProgram
	}
	fromMode := rt.session.Mode.Mode

	res, delta, err := rt.program.Choose(rt.session, p.ChoiceID, p.Seq)
	if err != nil {
		return TransitionResult{}, err
	}
	if delta == nil {
		// Дубликат seq: то же состояние, эффекты не применяются повторно
		// и события не эмитятся заново.
		return res, nil
	}

	rt.commitTransition(res, delta, fromMode)
	return res, nil
}

// opAbort - явная отмена активной программы.
func (rt *SessionRuntime) opAbort(reason string, seq uint64) (TransitionResult, error) {
	if rt.program == nil {
		return TransitionResult{}, domain.ErrUnknownProgram
	}
	fromMode := rt.session.Mode.Mode

	res, delta, err := rt.program.Abort(rt.session, reason, seq)
	if err != nil {
		return TransitionResult{}, err
	}
	if delta == nil {
		// Дубликат seq: состояние не менялось, события не эмитятся.
		return res, nil
	}
	rt.commitTransition(res, delta, fromMode)
	return res, nil
}

// commitTransition коммитит дельту перехода и эмитит события
// narrativeProgramTransition / modeChanged.
func (rt *SessionRuntime) commitTransition(res TransitionResult, delta *domain.SessionDelta, fromMode domain.GameMode) {
	rt.commit(delta)

	rt.emit(api.Event{
		Type:      domain.EventProgramTransition,
		ProgramID: res.ProgramID,
		From:      string(res.From),
		To:        string(res.To),
	})
	if rt.session.Mode.Mode != fromMode {
		rt.emit(api.Event{
			Type: domain.EventModeChanged,
			From: string(fromMode),
			To:   string(rt.session.Mode.Mode),
		})
	}
}

func interactionContext(s *domain.GameSession, w *domain.GameWorld, npc *domain.NPC, args json.RawMessage) interactions.Context {
	return interactions.Context{Session: s, World: w, NPC: npc, Payload: args}
}
