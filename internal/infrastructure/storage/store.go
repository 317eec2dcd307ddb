// Package storage - SQLite-персистенция сессий и журнала событий.
// Драйвер modernc.org/sqlite работает через database/sql без cgo.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pixsim-server/internal/domain"
	"pixsim-server/pkg/api"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    world_id   TEXT NOT NULL,
    world_time REAL NOT NULL DEFAULT 0,
    flags      TEXT NOT NULL DEFAULT '{}',
    stats      TEXT NOT NULL DEFAULT '{}',
    mode       TEXT NOT NULL DEFAULT '{}',
    mode_stack TEXT NOT NULL DEFAULT '[]',
    seq        INTEGER NOT NULL DEFAULT 0,
    archived   INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
    session_id TEXT NOT NULL,
    npc_id     TEXT NOT NULL,
    affinity   REAL NOT NULL DEFAULT 0,
    trust      REAL NOT NULL DEFAULT 0,
    chemistry  REAL NOT NULL DEFAULT 0,
    tension    REAL NOT NULL DEFAULT 0,
    tier_id    TEXT NOT NULL DEFAULT '',
    intimacy_level_id TEXT NOT NULL DEFAULT '',
    is_normalized     INTEGER NOT NULL DEFAULT 0,
    last_interaction_world_time REAL NOT NULL DEFAULT -1,
    PRIMARY KEY (session_id, npc_id)
);

-- Журнал событий: внешние потребители дочитывают пропущенное отсюда.
-- npc_id в ключе: один коммит может изменить отношения нескольких NPC,
-- и все эти события делят один seq.
CREATE TABLE IF NOT EXISTS events (
    session_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    type       TEXT NOT NULL,
    npc_id     TEXT NOT NULL DEFAULT '',
    payload    TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, seq, type, npc_id)
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
`

// Store - обертка над соединением. Потокобезопасность дает database/sql.
type Store struct {
	db *sql.DB
}

// Open открывает (или создает) базу по DSN. ":memory:" для тестов.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (st *Store) Close() error {
	return st.db.Close()
}

// SaveSession сохраняет сессию и все её отношения одной транзакцией.
// Частично сохраненная сессия не наблюдаема.
func (st *Store) SaveSession(s *domain.GameSession) error {
	flags, err := json.Marshal(s.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	mode, err := json.Marshal(s.Mode)
	if err != nil {
		return fmt.Errorf("marshal mode: %w", err)
	}
	stack, err := json.Marshal(s.ModeStack)
	if err != nil {
		return fmt.Errorf("marshal mode stack: %w", err)
	}

	tx, err := st.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, world_id, world_time, flags, stats, mode, mode_stack, seq, archived, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			world_time = excluded.world_time,
			flags      = excluded.flags,
			stats      = excluded.stats,
			mode       = excluded.mode,
			mode_stack = excluded.mode_stack,
			seq        = excluded.seq,
			archived   = excluded.archived,
			updated_at = excluded.updated_at`,
		s.ID, s.WorldID, s.WorldTime, string(flags), string(stats), string(mode), string(stack),
		s.Seq, boolToInt(s.Archived), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for npcID, r := range s.Relationships {
		_, err = tx.Exec(`
			INSERT INTO relationships (session_id, npc_id, affinity, trust, chemistry, tension,
				tier_id, intimacy_level_id, is_normalized, last_interaction_world_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, npc_id) DO UPDATE SET
				affinity  = excluded.affinity,
				trust     = excluded.trust,
				chemistry = excluded.chemistry,
				tension   = excluded.tension,
				tier_id   = excluded.tier_id,
				intimacy_level_id = excluded.intimacy_level_id,
				is_normalized     = excluded.is_normalized,
				last_interaction_world_time = excluded.last_interaction_world_time`,
			s.ID, npcID, r.Affinity, r.Trust, r.Chemistry, r.Tension,
			r.TierID, r.IntimacyLevelID, boolToInt(r.IsNormalized), r.LastInteractionWorldTime)
		if err != nil {
			return fmt.Errorf("upsert relationship %s: %w", npcID, err)
		}
	}

	return tx.Commit()
}

// LoadSession восстанавливает сессию. domain.ErrUnknownSession, если нет.
func (st *Store) LoadSession(id string) (*domain.GameSession, error) {
	row := st.db.QueryRow(`
		SELECT world_id, world_time, flags, stats, mode, mode_stack, seq, archived
		FROM sessions WHERE id = ?`, id)

	var (
		s                         = &domain.GameSession{ID: id}
		flags, stats, mode, stack string
		archived                  int
	)
	err := row.Scan(&s.WorldID, &s.WorldTime, &flags, &stats, &mode, &stack, &s.Seq, &archived)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUnknownSession
	}
	if err != nil {
		return nil, err
	}
	s.Archived = archived != 0

	if err := json.Unmarshal([]byte(flags), &s.Flags); err != nil {
		return nil, fmt.Errorf("unmarshal flags: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &s.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	if err := json.Unmarshal([]byte(mode), &s.Mode); err != nil {
		return nil, fmt.Errorf("unmarshal mode: %w", err)
	}
	if err := json.Unmarshal([]byte(stack), &s.ModeStack); err != nil {
		return nil, fmt.Errorf("unmarshal mode stack: %w", err)
	}

	s.Relationships = make(map[string]*domain.RelationshipState)
	rows, err := st.db.Query(`
		SELECT npc_id, affinity, trust, chemistry, tension,
			tier_id, intimacy_level_id, is_normalized, last_interaction_world_time
		FROM relationships WHERE session_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			npcID      string
			r          domain.RelationshipState
			normalized int
		)
		if err := rows.Scan(&npcID, &r.Affinity, &r.Trust, &r.Chemistry, &r.Tension,
			&r.TierID, &r.IntimacyLevelID, &normalized, &r.LastInteractionWorldTime); err != nil {
			return nil, err
		}
		r.IsNormalized = normalized != 0
		s.Relationships[npcID] = &r
	}
	return s, rows.Err()
}

// ArchiveSession помечает сессию архивной. Записи не удаляются никогда.
func (st *Store) ArchiveSession(id string) error {
	res, err := st.db.Exec(`UPDATE sessions SET archived = 1, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUnknownSession
	}
	return nil
}

// AppendEvent пишет событие в журнал.
// Повторная запись того же (session, seq, type, npc) тихо игнорируется:
// at-least-once доставка и так допускает дубликаты.
func (st *Store) AppendEvent(ev api.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = st.db.Exec(`
		INSERT OR IGNORE INTO events (session_id, seq, type, npc_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Seq, ev.Type, ev.NPCID, string(payload), time.Now().UnixMilli())
	return err
}

// EventsSince возвращает события сессии с номерами > afterSeq.
// Это путь догоняющего чтения для медленных подписчиков.
func (st *Store) EventsSince(sessionID string, afterSeq uint64) ([]api.Event, error) {
	rows, err := st.db.Query(`
		SELECT payload FROM events
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC`, sessionID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev api.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListSessionIDs возвращает id всех неархивных сессий (для рестарта).
func (st *Store) ListSessionIDs() ([]string, error) {
	rows, err := st.db.Query(`SELECT id FROM sessions WHERE archived = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
