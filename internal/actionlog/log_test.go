package actionlog

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timesync-agent/config"
	"timesync-agent/internal/db"
	"timesync-agent/internal/model"
	"timesync-agent/internal/store"
)

type fixedDevice struct {
	id  string
	err error
}

func (d fixedDevice) DeviceID(context.Context) (string, error) {
	return d.id, d.err
}

// flakyStore fails writes while failPut is set.
type flakyStore struct {
	store.Store
	failPut bool
}

func (s *flakyStore) Put(ctx context.Context, key, value string) error {
	if s.failPut {
		return errors.New("quota exceeded")
	}
	return s.Store.Put(ctx, key, value)
}

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "state.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	return store.NewGormStore(gormDB)
}

func TestAppend_AssignsIdentity(t *testing.T) {
	l := New(newSQLiteStore(t), fixedDevice{id: "device_1_abc"}, 5)
	require.NoError(t, l.Load(context.Background()))

	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	got, err := l.Append(context.Background(), model.TimeAction{
		Type:         model.ActionStart,
		Timestamp:    ts,
		ProjectID:    "P1",
		SegmentType:  model.SegmentWork,
		SyncAttempts: 3,
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^offline_\d+_[0-9a-f]{9}$`), got.ID)
	assert.Regexp(t, regexp.MustCompile(`^local_\d+$`), got.LocalID)
	assert.Equal(t, "device_1_abc", got.DeviceID)
	assert.Equal(t, 0, got.SyncAttempts)
	assert.Equal(t, ts, got.Timestamp)
	assert.Equal(t, 1, l.Len())
}

func TestAppend_KeepsCallerLocalID(t *testing.T) {
	l := New(newSQLiteStore(t), fixedDevice{id: "d"}, 5)

	got, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStop, LocalID: "local_42"})
	require.NoError(t, err)
	assert.Equal(t, "local_42", got.LocalID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestAppend_UniqueIDs(t *testing.T) {
	l := New(newSQLiteStore(t), fixedDevice{id: "d"}, 5)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		a, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStart})
		require.NoError(t, err)
		assert.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true
	}
}

func TestLog_SurvivesReload(t *testing.T) {
	s := newSQLiteStore(t)
	first := New(s, fixedDevice{id: "d"}, 5)
	a, err := first.Append(context.Background(), model.TimeAction{Type: model.ActionStart, ProjectID: "P1"})
	require.NoError(t, err)

	second := New(s, fixedDevice{id: "d"}, 5)
	require.NoError(t, second.Load(context.Background()))

	all := second.LoadAll()
	require.Len(t, all, 1)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, "P1", all[0].ProjectID)
}

func TestAppend_PersistFailureKeepsMemoryState(t *testing.T) {
	s := &flakyStore{Store: newSQLiteStore(t), failPut: true}
	l := New(s, fixedDevice{id: "d"}, 5)

	a, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStart})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append", perr.Op)
	assert.NotEmpty(t, a.ID)
	require.Len(t, l.LoadAll(), 1)
	assert.Equal(t, a.ID, l.LoadAll()[0].ID)
}

func TestAppend_DeviceLookupFailureStillQueues(t *testing.T) {
	l := New(newSQLiteStore(t), fixedDevice{id: "device_tmp", err: errors.New("unavailable")}, 5)

	a, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStart})
	require.NoError(t, err)
	assert.Equal(t, "device_tmp", a.DeviceID)
}

func TestStats(t *testing.T) {
	l := New(newSQLiteStore(t), fixedDevice{id: "d"}, 5)
	early := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	require.NoError(t, l.Replace(context.Background(), []model.TimeAction{
		{ID: "a", Type: model.ActionStart, Timestamp: late, SyncAttempts: 1},
		{ID: "b", Type: model.ActionStop, Timestamp: early, SyncAttempts: 5},
		{ID: "c", Type: model.ActionSwitch, Timestamp: late.Add(time.Minute)},
	}))

	stats := l.Stats()
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.PendingSync)
	assert.Equal(t, 1, stats.Failed)
	require.NotNil(t, stats.OldestPending)
	assert.Equal(t, late, *stats.OldestPending)
	assert.True(t, l.HasRetryable())
}

func TestStats_EmptyLog(t *testing.T) {
	stats := ComputeStats(nil, 5)
	assert.Equal(t, 0, stats.TotalEntries)
	assert.Nil(t, stats.OldestPending)
}

func TestUpdate_SeesLatestContents(t *testing.T) {
	l := New(newSQLiteStore(t), fixedDevice{id: "d"}, 5)
	a, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStart})
	require.NoError(t, err)
	b, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStop})
	require.NoError(t, err)

	err = l.Update(context.Background(), func(current []model.TimeAction) []model.TimeAction {
		out := current[:0]
		for _, x := range current {
			if x.ID != a.ID {
				out = append(out, x)
			}
		}
		return out
	})
	require.NoError(t, err)

	all := l.LoadAll()
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestClear(t *testing.T) {
	s := newSQLiteStore(t)
	l := New(s, fixedDevice{id: "d"}, 5)
	_, err := l.Append(context.Background(), model.TimeAction{Type: model.ActionStart})
	require.NoError(t, err)

	require.NoError(t, l.Clear(context.Background()))
	assert.Equal(t, 0, l.Len())

	_, err = s.Get(context.Background(), store.KeyActionQueue)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersist_DropsSynthesizedFlag(t *testing.T) {
	s := newSQLiteStore(t)
	l := New(s, fixedDevice{id: "d"}, 5)
	require.NoError(t, l.Replace(context.Background(), []model.TimeAction{
		{ID: "x", Type: model.ActionStop, Synthesized: true},
	}))

	raw, err := s.Get(context.Background(), store.KeyActionQueue)
	require.NoError(t, err)
	assert.NotContains(t, raw, "synthesized")
}

func TestSortByTimestamp(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []model.TimeAction{
		{ID: "late", Timestamp: base.Add(time.Minute)},
		{ID: "tie1", Timestamp: base},
		{ID: "tie2", Timestamp: base},
	}

	out := SortByTimestamp(in)

	assert.Equal(t, []string{"tie1", "tie2", "late"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "late", in[0].ID)
}
