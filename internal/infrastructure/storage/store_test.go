package storage

import (
	"testing"

	"pixsim-server/internal/domain"
	"pixsim-server/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	st := openTestStore(t)

	s := domain.NewSession("s1", "town", "square")
	s.WorldTime = 3600
	s.Seq = 7
	s.Flags["met.mira"] = true
	s.AddStat(domain.PlayerEntityID, "gold", 40)
	s.PushMode(domain.ModeState{Mode: domain.ModeConversation, FocusNPC: "mira"})

	r := s.Relationship("mira")
	r.Affinity = 42
	r.TierID = "friend"
	r.IntimacyLevelID = "warm"
	r.IsNormalized = true
	r.LastInteractionWorldTime = 1800

	require.NoError(t, st.SaveSession(s))

	loaded, err := st.LoadSession("s1")
	require.NoError(t, err)

	assert.Equal(t, "town", loaded.WorldID)
	assert.Equal(t, 3600.0, loaded.WorldTime)
	assert.Equal(t, uint64(7), loaded.Seq)
	assert.Equal(t, true, loaded.Flags["met.mira"])
	assert.Equal(t, 40.0, loaded.Stat(domain.PlayerEntityID, "gold"))
	assert.Equal(t, domain.ModeConversation, loaded.Mode.Mode)
	require.Len(t, loaded.ModeStack, 1)
	assert.Equal(t, domain.ModeMap, loaded.ModeStack[0].Mode)

	lr := loaded.Relationships["mira"]
	require.NotNil(t, lr)
	assert.Equal(t, 42.0, lr.Affinity)
	assert.Equal(t, "friend", lr.TierID)
	assert.True(t, lr.IsNormalized)
	assert.Equal(t, 1800.0, lr.LastInteractionWorldTime)
}

func TestStore_LoadUnknown(t *testing.T) {
	st := openTestStore(t)
	_, err := st.LoadSession("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
}

func TestStore_ArchiveKeepsRecord(t *testing.T) {
	st := openTestStore(t)
	s := domain.NewSession("s1", "town", "square")
	require.NoError(t, st.SaveSession(s))

	require.NoError(t, st.ArchiveSession("s1"))

	// Архив не удаляет запись, только помечает.
	loaded, err := st.LoadSession("s1")
	require.NoError(t, err)
	assert.True(t, loaded.Archived)

	ids, err := st.ListSessionIDs()
	require.NoError(t, err)
	assert.NotContains(t, ids, "s1")
}

func TestStore_EventJournal(t *testing.T) {
	st := openTestStore(t)

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, st.AppendEvent(api.Event{
			Type: domain.EventSessionUpdated, SessionID: "s1", Seq: seq,
		}))
	}
	// Дубликат at-least-once доставки не дублирует запись.
	require.NoError(t, st.AppendEvent(api.Event{
		Type: domain.EventSessionUpdated, SessionID: "s1", Seq: 2,
	}))

	evs, err := st.EventsSince("s1", 1)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, uint64(3), evs[1].Seq)
}
