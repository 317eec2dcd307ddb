package engine

import (
	"fmt"

	"pixsim-server/internal/domain"
	"pixsim-server/pkg/logger"

	"github.com/google/uuid"
)

// Состояния нарративной программы.
// Idle -> Running -> AwaitingChoice -> Running -> Completed,
// Aborted достижим из любого нетерминального состояния.
type ProgramState string

const (
	ProgramIdle           ProgramState = "IDLE"
	ProgramRunning        ProgramState = "RUNNING"
	ProgramAwaitingChoice ProgramState = "AWAITING_CHOICE"
	ProgramCompleted      ProgramState = "COMPLETED"
	ProgramAborted        ProgramState = "ABORTED"
)

func (s ProgramState) terminal() bool {
	return s == ProgramCompleted || s == ProgramAborted
}

// Choice - вариант на узле ветвления.
type Choice struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
	Next string `json:"-" yaml:"next"`
}

// ProgramNode - узел авторского графа программы.
// Виды: say (текст + next), branch (выбор), effect (дельта + next), end.
type ProgramNode struct {
	ID      string               `yaml:"id"`
	Kind    string               `yaml:"kind"`
	Text    string               `yaml:"text"`
	Next    string               `yaml:"next"`
	Choices []Choice             `yaml:"choices"`
	Effect  *domain.SessionDelta `yaml:"effect"`
}

// ProgramDefinition - авторское определение программы. Read-only на рантайме.
type ProgramDefinition struct {
	ID    string         `yaml:"id"`
	Mode  string         `yaml:"mode"` // "conversation" | "scene"
	Start string         `yaml:"start"`
	Nodes []*ProgramNode `yaml:"nodes"`

	nodeIndex map[string]*ProgramNode
}

// Validate проверяет целостность графа при загрузке контента.
func (d *ProgramDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("program without id")
	}
	d.nodeIndex = make(map[string]*ProgramNode, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("program %s: node without id", d.ID)
		}
		if _, dup := d.nodeIndex[n.ID]; dup {
			return fmt.Errorf("program %s: duplicate node %s", d.ID, n.ID)
		}
		d.nodeIndex[n.ID] = n
	}
	if _, ok := d.nodeIndex[d.Start]; !ok {
		return fmt.Errorf("program %s: start node %q missing", d.ID, d.Start)
	}
	for _, n := range d.Nodes {
		switch n.Kind {
		case "say", "effect":
			if _, ok := d.nodeIndex[n.Next]; !ok {
				return fmt.Errorf("program %s: node %s points to missing %q", d.ID, n.ID, n.Next)
			}
		case "branch":
			if len(n.Choices) == 0 {
				return fmt.Errorf("program %s: branch %s has no choices", d.ID, n.ID)
			}
			for _, c := range n.Choices {
				if _, ok := d.nodeIndex[c.Next]; !ok {
					return fmt.Errorf("program %s: choice %s points to missing %q", d.ID, c.ID, c.Next)
				}
			}
		case "end":
			// терминальный узел
		default:
			return fmt.Errorf("program %s: node %s has unknown kind %q", d.ID, n.ID, n.Kind)
		}
	}
	return nil
}

func (d *ProgramDefinition) node(id string) *ProgramNode {
	return d.nodeIndex[id]
}

// GameMode возвращает режим сессии для программы.
func (d *ProgramDefinition) GameMode() domain.GameMode {
	if d.Mode == "scene" {
		return domain.ModeCutscene
	}
	return domain.ModeConversation
}

// TransitionResult - итог одного перехода машины состояний.
// Хранится как lastResult для идемпотентных повторов.
type TransitionResult struct {
	ProgramID string       `json:"programId"`
	Seq       uint64       `json:"seq"`
	From      ProgramState `json:"from"`
	To        ProgramState `json:"to"`
	NodeID    string       `json:"nodeId,omitempty"`
	Text      []string     `json:"text,omitempty"`
	Choices   []Choice     `json:"choices,omitempty"`
}

// Program - живой экземпляр программы. На сессию активен максимум один.
// Все методы вызываются ТОЛЬКО из писателя сессии.
type Program struct {
	ID    string // id экземпляра
	Def   *ProgramDefinition
	NPCID string

	State  ProgramState
	NodeID string

	// Seq - монотонный номер перехода. Запрос с уже примененным номером -
	// дубликат: возвращаем тот же результат, эффекты не применяем повторно.
	Seq        uint64
	lastResult TransitionResult
}

// NewProgram создает экземпляр в Idle.
func NewProgram(def *ProgramDefinition, npcID string) *Program {
	return &Program{
		ID:    uuid.NewString(),
		Def:   def,
		NPCID: npcID,
		State: ProgramIdle,
	}
}

// Begin: Idle -> Running. Пушит текущий режим в стек сессии и
// прогоняет узлы до ветвления или конца.
// Накопленная дельта эффектов возвращается вызывающему (писателю) -
// машина состояний сама сессию не коммитит.
func (p *Program) Begin(s *domain.GameSession) (TransitionResult, *domain.SessionDelta, error) {
	if p.State != ProgramIdle {
		return TransitionResult{}, nil, &domain.InvalidModeTransitionError{
			ProgramID: p.Def.ID, From: string(p.State), To: string(ProgramRunning)}
	}

	s.PushMode(domain.ModeState{
		Mode:       p.Def.GameMode(),
		LocationID: s.Mode.LocationID,
		FocusNPC:   p.NPCID,
		FocusProg:  p.Def.ID,
	})

	p.State = ProgramRunning
	p.NodeID = p.Def.Start
	return p.advance(s, ProgramIdle)
}

// Choose: AwaitingChoice -> Running. Невалидный id выбора отклоняется
// БЕЗ мутации состояния. Дубликат seq возвращает прошлый результат.
func (p *Program) Choose(s *domain.GameSession, choiceID string, seq uint64) (TransitionResult, *domain.SessionDelta, error) {
	if seq != 0 && seq <= p.Seq {
		// Ретрай ненадежного вызывающего: то же состояние, без эффектов.
		logger.Log.WithField("program_id", p.Def.ID).Debug("Duplicate transition seq, replaying result")
		return p.lastResult, nil, nil
	}
	if p.State != ProgramAwaitingChoice {
		return TransitionResult{}, nil, &domain.InvalidModeTransitionError{
			ProgramID: p.Def.ID, From: string(p.State), To: string(ProgramRunning)}
	}

	node := p.Def.node(p.NodeID)
	var next string
	for _, c := range node.Choices {
		if c.ID == choiceID {
			next = c.Next
			break
		}
	}
	if next == "" {
		return TransitionResult{}, nil, fmt.Errorf("program %s node %s: %w: %q",
			p.Def.ID, p.NodeID, domain.ErrUnknownChoice, choiceID)
	}

	p.State = ProgramRunning
	p.NodeID = next
	return p.advance(s, ProgramAwaitingChoice)
}

// Abort: любое нетерминальное -> Aborted. Стек режимов попается так же,
// как при Completed; причина аборта пишется во флаги сессии.
// Дубликат seq, как и в Choose, возвращает прошлый результат без эффектов.
func (p *Program) Abort(s *domain.GameSession, reason string, seq uint64) (TransitionResult, *domain.SessionDelta, error) {
	if seq != 0 && seq <= p.Seq {
		logger.Log.WithField("program_id", p.Def.ID).Debug("Duplicate transition seq, replaying result")
		return p.lastResult, nil, nil
	}
	if p.State.terminal() {
		return TransitionResult{}, nil, &domain.InvalidModeTransitionError{
			ProgramID: p.Def.ID, From: string(p.State), To: string(ProgramAborted)}
	}
	from := p.State
	p.State = ProgramAborted
	s.PopMode()

	delta := &domain.SessionDelta{
		SetFlags: map[string]any{"program.aborted." + p.Def.ID: reason},
	}
	p.Seq++
	p.lastResult = TransitionResult{
		ProgramID: p.Def.ID, Seq: p.Seq,
		From: from, To: ProgramAborted,
	}
	return p.lastResult, delta, nil
}

// FocusNPCKey - псевдо-id NPC в эффектах программ. Автор программы не
// знает, с кем её запустят; ключ подменяется на NPC в фокусе.
const FocusNPCKey = "focus"

// resolveEffect подставляет настоящий id вместо FocusNPCKey.
// Исходный эффект (авторский контент) не мутируется.
func (p *Program) resolveEffect(e *domain.SessionDelta) *domain.SessionDelta {
	if e == nil || p.NPCID == "" {
		return e
	}
	rd, ok := e.Relationships[FocusNPCKey]
	if !ok && e.TouchNPC != FocusNPCKey {
		return e
	}

	cp := *e
	if ok {
		cp.Relationships = make(map[string]domain.RelationshipDelta, len(e.Relationships))
		for k, v := range e.Relationships {
			if k != FocusNPCKey {
				cp.Relationships[k] = v
			}
		}
		cur := cp.Relationships[p.NPCID]
		cur.Affinity += rd.Affinity
		cur.Trust += rd.Trust
		cur.Chemistry += rd.Chemistry
		cur.Tension += rd.Tension
		cp.Relationships[p.NPCID] = cur
	}
	if e.TouchNPC == FocusNPCKey {
		cp.TouchNPC = p.NPCID
	}
	return &cp
}

// advance бежит по узлам из состояния Running до ветвления или конца.
// Эффектные узлы сливаются в одну дельту (атомарность: либо весь прогон
// до остановки, либо ничего).
func (p *Program) advance(s *domain.GameSession, from ProgramState) (TransitionResult, *domain.SessionDelta, error) {
	delta := &domain.SessionDelta{}
	var text []string

	for {
		node := p.Def.node(p.NodeID)
		if node == nil {
			// Валидация контента такое не пропускает; если добрались -
			// это неустранимая ошибка контента, абортимся.
			p.State = ProgramAborted
			s.PopMode()
			p.Seq++
			p.lastResult = TransitionResult{
				ProgramID: p.Def.ID, Seq: p.Seq, From: from, To: ProgramAborted,
			}
			return p.lastResult, &domain.SessionDelta{
				SetFlags: map[string]any{"program.aborted." + p.Def.ID: "missing node " + p.NodeID},
			}, nil
		}

		switch node.Kind {
		case "say":
			text = append(text, node.Text)
			p.NodeID = node.Next

		case "effect":
			delta.Merge(p.resolveEffect(node.Effect))
			p.NodeID = node.Next

		case "branch":
			p.State = ProgramAwaitingChoice
			p.Seq++
			p.lastResult = TransitionResult{
				ProgramID: p.Def.ID, Seq: p.Seq,
				From: from, To: ProgramAwaitingChoice,
				NodeID: node.ID, Text: append(text, node.Text),
				Choices: node.Choices,
			}
			return p.lastResult, delta, nil

		case "end":
			p.State = ProgramCompleted
			s.PopMode()
			p.Seq++
			p.lastResult = TransitionResult{
				ProgramID: p.Def.ID, Seq: p.Seq,
				From: from, To: ProgramCompleted,
				NodeID: node.ID, Text: append(text, node.Text),
			}
			return p.lastResult, delta, nil
		}
	}
}
