package interactions

import (
	"errors"
	"testing"

	"pixsim-server/internal/domain"

	"gopkg.in/yaml.v3"
)

func rawFromYAML(t *testing.T, src string) RawDefinition {
	t.Helper()
	var raw RawDefinition
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		t.Fatalf("bad test yaml: %v", err)
	}
	return raw
}

func TestRegistry_AddAndOrder(t *testing.T) {
	r := NewRegistry()

	// Добавляем в "неправильном" порядке - All() обязан вернуть по id
	for _, src := range []string{
		"id: zz_quarrel\ntype: quarrel\ncategory: conflict",
		"id: aa_chat\ntype: chat\ncategory: social",
		"id: mm_gift\ntype: gift\ncategory: social\nconfig:\n  item: rose\n  cost: 10",
	} {
		if err := r.Add(rawFromYAML(t, src)); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(all))
	}
	want := []string{"aa_chat", "mm_gift", "zz_quarrel"}
	for i, d := range all {
		if d.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], d.ID)
		}
	}
}

func TestRegistry_InvalidConfigFailsAtLoad(t *testing.T) {
	r := NewRegistry()

	// gift без item обязан упасть при загрузке, не на рантайме
	err := r.Add(rawFromYAML(t, "id: bad_gift\ntype: gift\nconfig:\n  cost: 5"))
	var ice *domain.InvalidConfigError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InvalidConfigError, got %v", err)
	}
}

func TestRegistry_UnknownTypeAndDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(rawFromYAML(t, "id: x\ntype: dance")); err == nil {
		t.Error("unknown type accepted")
	}

	if err := r.Add(rawFromYAML(t, "id: c\ntype: chat")); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := r.Add(rawFromYAML(t, "id: c\ntype: chat")); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestFlirt_BackfireOnLowAffinity(t *testing.T) {
	effect := BuildFlirt(FlirtConfig{})
	npc := &domain.NPC{ID: "mira"}

	s := domain.NewSession("s1", "town", "square")
	s.Relationship("mira").Affinity = 5 // ниже порога

	delta, err := effect(Context{Session: s, NPC: npc})
	if err != nil {
		t.Fatal(err)
	}
	rd := delta.Relationships["mira"]
	if rd.Tension <= 0 {
		t.Errorf("low-affinity flirt must raise tension, got %+v", rd)
	}

	s.Relationship("mira").Affinity = 60 // выше порога
	delta, _ = effect(Context{Session: s, NPC: npc})
	rd = delta.Relationships["mira"]
	if rd.Chemistry <= 0 || rd.Tension != 0 {
		t.Errorf("high-affinity flirt must raise chemistry only, got %+v", rd)
	}
}

func TestGift_RequiresGold(t *testing.T) {
	effect := BuildGift(GiftConfig{Item: "rose", Cost: 10})
	npc := &domain.NPC{ID: "mira"}
	s := domain.NewSession("s1", "town", "square")

	_, err := effect(Context{Session: s, NPC: npc})
	var gd *domain.GatingDeniedError
	if !errors.As(err, &gd) {
		t.Fatalf("expected GatingDeniedError without gold, got %v", err)
	}

	s.AddStat(domain.PlayerEntityID, "gold", 50)
	delta, err := effect(Context{Session: s, NPC: npc})
	if err != nil {
		t.Fatal(err)
	}
	if delta.AddStats[domain.PlayerEntityID]["gold"] != -10 {
		t.Error("gift must spend gold")
	}
}
