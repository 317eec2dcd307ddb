package engine

import (
	"errors"
	"testing"

	"pixsim-server/internal/domain"
)

func testProgram(t *testing.T) *ProgramDefinition {
	t.Helper()
	def := &ProgramDefinition{
		ID:    "first_meeting",
		Mode:  "conversation",
		Start: "hello",
		Nodes: []*ProgramNode{
			{ID: "hello", Kind: "say", Text: "Привет, путник.", Next: "ask"},
			{ID: "ask", Kind: "branch", Text: "Чего ты хочешь?", Choices: []Choice{
				{ID: "friendly", Text: "Просто поболтать", Next: "warm"},
				{ID: "rude", Text: "Отстань", Next: "cold"},
			}},
			{ID: "warm", Kind: "effect", Next: "bye",
				Effect: &domain.SessionDelta{
					Relationships: map[string]domain.RelationshipDelta{
						"mira": {Affinity: 5, Trust: 2},
					},
				}},
			{ID: "cold", Kind: "effect", Next: "bye",
				Effect: &domain.SessionDelta{
					Relationships: map[string]domain.RelationshipDelta{
						"mira": {Tension: 8},
					},
				}},
			{ID: "bye", Kind: "end", Text: "До встречи."},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("test program invalid: %v", err)
	}
	return def
}

func TestProgram_HappyPath(t *testing.T) {
	s := domain.NewSession("s1", "town", "square")
	p := NewProgram(testProgram(t), "mira")

	res, delta, err := p.Begin(s)
	if err != nil {
		t.Fatal(err)
	}
	if res.To != ProgramAwaitingChoice {
		t.Fatalf("expected AWAITING_CHOICE, got %s", res.To)
	}
	if s.Mode.Mode != domain.ModeConversation || s.Mode.FocusNPC != "mira" {
		t.Fatalf("mode not switched: %+v", s.Mode)
	}
	if len(res.Choices) != 2 {
		t.Fatalf("expected 2 choices, got %d", len(res.Choices))
	}
	if delta != nil && len(delta.Relationships) != 0 {
		t.Error("no effects expected before the branch")
	}

	res, delta, err = p.Choose(s, "friendly", res.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if res.To != ProgramCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.To)
	}
	if delta.Relationships["mira"].Affinity != 5 {
		t.Errorf("effect delta lost: %+v", delta)
	}
	// Завершение восстанавливает прежний режим.
	if s.Mode.Mode != domain.ModeMap {
		t.Errorf("mode stack not popped: %+v", s.Mode)
	}
}

func TestProgram_InvalidChoiceDoesNotMutate(t *testing.T) {
	s := domain.NewSession("s1", "town", "square")
	p := NewProgram(testProgram(t), "mira")
	res, _, _ := p.Begin(s)

	_, _, err := p.Choose(s, "nonsense", res.Seq+1)
	if !errors.Is(err, domain.ErrUnknownChoice) {
		t.Fatalf("expected ErrUnknownChoice, got %v", err)
	}
	if p.State != ProgramAwaitingChoice {
		t.Error("invalid choice mutated program state")
	}
	if s.Mode.Mode != domain.ModeConversation {
		t.Error("invalid choice mutated session mode")
	}
}

func TestProgram_InvalidEdgeRejected(t *testing.T) {
	s := domain.NewSession("s1", "town", "square")
	p := NewProgram(testProgram(t), "mira")

	// Choose до Begin - ребра нет.
	_, _, err := p.Choose(s, "friendly", 1)
	var imt *domain.InvalidModeTransitionError
	if !errors.As(err, &imt) {
		t.Fatalf("expected InvalidModeTransitionError, got %v", err)
	}
	if s.Mode.Mode != domain.ModeMap {
		t.Error("rejected edge changed session mode")
	}

	// Повторный Begin после старта тоже запрещен.
	if _, _, err := p.Begin(s); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Begin(s); !errors.As(err, &imt) {
		t.Error("double Begin accepted")
	}
}

func TestProgram_DuplicateSeqIsIdempotent(t *testing.T) {
	s := domain.NewSession("s1", "town", "square")
	p := NewProgram(testProgram(t), "mira")
	res, _, _ := p.Begin(s)

	first, delta, err := p.Choose(s, "friendly", res.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if delta == nil || delta.Relationships["mira"].Affinity != 5 {
		t.Fatal("first transition must carry the effect delta")
	}

	// Ретрай с тем же номером: то же состояние, НИКАКОЙ новой дельты.
	replay, delta2, err := p.Choose(s, "friendly", first.Seq)
	if err != nil {
		t.Fatal(err)
	}
	if delta2 != nil {
		t.Error("duplicate transition re-applied side effects")
	}
	if replay.Seq != first.Seq || replay.To != first.To {
		t.Errorf("replay diverged: %+v vs %+v", replay, first)
	}
}

func TestProgram_AbortPopsModeAndRecordsReason(t *testing.T) {
	s := domain.NewSession("s1", "town", "square")
	p := NewProgram(testProgram(t), "mira")
	p.Begin(s)

	res, delta, err := p.Abort(s, "player disconnected", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.To != ProgramAborted {
		t.Fatalf("expected ABORTED, got %s", res.To)
	}
	if s.Mode.Mode != domain.ModeMap {
		t.Error("abort did not pop mode stack")
	}
	if delta.SetFlags["program.aborted.first_meeting"] != "player disconnected" {
		t.Error("abort reason not recorded in flags")
	}

	// Аборт терминального состояния - невалидное ребро.
	var imt *domain.InvalidModeTransitionError
	if _, _, err := p.Abort(s, "again", 0); !errors.As(err, &imt) {
		t.Error("abort from terminal state accepted")
	}
}

func TestProgram_DuplicateAbortSeqIsIdempotent(t *testing.T) {
	s := domain.NewSession("s1", "town", "square")
	p := NewProgram(testProgram(t), "mira")
	res, _, _ := p.Begin(s)

	first, delta, err := p.Abort(s, "player disconnected", res.Seq+1)
	if err != nil {
		t.Fatal(err)
	}
	if first.To != ProgramAborted || delta == nil {
		t.Fatalf("abort did not transition: %+v", first)
	}

	// Ретрай аборта с тем же номером: тот же результат, без новой дельты
	// и без повторного попа стека режимов.
	replay, delta2, err := p.Abort(s, "player disconnected", first.Seq)
	if err != nil {
		t.Fatal(err)
	}
	if delta2 != nil {
		t.Error("duplicate abort re-applied side effects")
	}
	if replay.Seq != first.Seq || replay.To != first.To {
		t.Errorf("replay diverged: %+v vs %+v", replay, first)
	}
	if s.Mode.Mode != domain.ModeMap {
		t.Errorf("mode corrupted by duplicate abort: %+v", s.Mode)
	}
}

func TestProgramDefinition_ValidateCatchesBadGraph(t *testing.T) {
	def := &ProgramDefinition{
		ID:    "broken",
		Start: "a",
		Nodes: []*ProgramNode{
			{ID: "a", Kind: "say", Next: "missing"},
		},
	}
	if err := def.Validate(); err == nil {
		t.Error("dangling next accepted")
	}
}
