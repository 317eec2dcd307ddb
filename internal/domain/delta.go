package domain

// SessionDelta - атомарное изменение сессии, результат эффекта
// взаимодействия или узла нарративной программы.
//
// Эффекты обязаны быть чистыми трансформациями (snapshot -> delta),
// чтобы их можно было безопасно пересчитать при ретрае конфликта.
// Применение дельты происходит только внутри писателя сессии.
type SessionDelta struct {
	// SetFlags - флаги на установку (nil значение = снять флаг).
	SetFlags map[string]any `json:"setFlags,omitempty" yaml:"set_flags"`

	// AddStats: entityID -> stat -> приращение.
	AddStats map[string]map[string]float64 `json:"addStats,omitempty" yaml:"add_stats"`

	// Relationships: npcID -> дельта шкал.
	Relationships map[string]RelationshipDelta `json:"relationships,omitempty" yaml:"relationships"`

	// AdvanceWorldTime - сколько симулированных секунд стоило действие.
	AdvanceWorldTime float64 `json:"advanceWorldTime,omitempty" yaml:"advance_world_time"`

	// TouchNPC - обновить LastInteractionWorldTime этого NPC (кулдауны).
	TouchNPC string `json:"touchNpc,omitempty" yaml:"-"`

	// BeginProgram - эффект запускает нарративную программу
	// (обрабатывается рантаймом ПОСЛЕ коммита дельты).
	BeginProgram string `json:"beginProgram,omitempty" yaml:"begin_program"`
}

// Apply накатывает дельту на сессию. Вызывается только писателем сессии.
// Возвращает список NPC, чьи отношения изменились (для инвалидации
// кэша нормализатора и событий relationshipChanged).
func (d *SessionDelta) Apply(s *GameSession) []string {
	if d == nil {
		return nil
	}
	for k, v := range d.SetFlags {
		if v == nil {
			delete(s.Flags, k)
		} else {
			s.Flags[k] = v
		}
	}
	for e, m := range d.AddStats {
		for name, inc := range m {
			s.AddStat(e, name, inc)
		}
	}
	changed := make([]string, 0, len(d.Relationships))
	for npcID, rd := range d.Relationships {
		if rd.IsZero() {
			continue
		}
		s.Relationship(npcID).Apply(rd)
		changed = append(changed, npcID)
	}
	if d.TouchNPC != "" {
		s.Relationship(d.TouchNPC).LastInteractionWorldTime = s.WorldTime + d.AdvanceWorldTime
	}
	s.WorldTime += d.AdvanceWorldTime
	return changed
}

// Merge вливает другую дельту в эту (для составных эффектов).
func (d *SessionDelta) Merge(other *SessionDelta) {
	if other == nil {
		return
	}
	for k, v := range other.SetFlags {
		if d.SetFlags == nil {
			d.SetFlags = make(map[string]any)
		}
		d.SetFlags[k] = v
	}
	for e, m := range other.AddStats {
		if d.AddStats == nil {
			d.AddStats = make(map[string]map[string]float64)
		}
		if d.AddStats[e] == nil {
			d.AddStats[e] = make(map[string]float64)
		}
		for name, inc := range m {
			d.AddStats[e][name] += inc
		}
	}
	for npcID, rd := range other.Relationships {
		if d.Relationships == nil {
			d.Relationships = make(map[string]RelationshipDelta)
		}
		cur := d.Relationships[npcID]
		cur.Affinity += rd.Affinity
		cur.Trust += rd.Trust
		cur.Chemistry += rd.Chemistry
		cur.Tension += rd.Tension
		d.Relationships[npcID] = cur
	}
	d.AdvanceWorldTime += other.AdvanceWorldTime
	if other.TouchNPC != "" {
		d.TouchNPC = other.TouchNPC
	}
	if other.BeginProgram != "" {
		d.BeginProgram = other.BeginProgram
	}
}
