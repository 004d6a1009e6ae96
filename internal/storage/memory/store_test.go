package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func TestStoreTargets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateTarget(ctx, monitor.Target{ID: "b", Enabled: true, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.CreateTarget(ctx, monitor.Target{ID: "a", Enabled: false, CreatedAt: base}))
	require.Error(t, store.CreateTarget(ctx, monitor.Target{ID: "a"}))

	all, err := store.ListTargets(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)

	enabled, err := store.ListTargets(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	require.Equal(t, "b", enabled[0].ID)

	now := base.Add(time.Hour)
	require.NoError(t, store.MarkChecked(ctx, "b", now))
	got, err := store.GetTarget(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, now, *got.LastCheckedAt)

	_, err = store.GetTarget(ctx, "missing")
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.ErrorIs(t, store.UpdateTarget(ctx, monitor.Target{ID: "missing"}), monitor.ErrNotFound)
}

func TestStoreChecksNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateCheck(ctx, monitor.CheckAttempt{ID: "1", TargetID: "t", Status: monitor.CheckStatusSuccess, Timestamp: base}))
	require.NoError(t, store.CreateCheck(ctx, monitor.CheckAttempt{ID: "2", TargetID: "t", Status: monitor.CheckStatusFailed, Timestamp: base.Add(time.Minute)}))
	require.NoError(t, store.CreateCheck(ctx, monitor.CheckAttempt{ID: "3", TargetID: "t", Status: monitor.CheckStatusTimeout, Timestamp: base.Add(2 * time.Minute)}))

	checks, err := store.ListChecks(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	require.Equal(t, "3", checks[0].ID)
	require.Equal(t, "2", checks[1].ID)

	latest, err := store.LatestSuccessfulCheck(ctx, "t")
	require.NoError(t, err)
	require.Equal(t, "1", latest.ID)

	_, err = store.LatestSuccessfulCheck(ctx, "other")
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestStoreInsertSnapshotIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	first := monitor.Snapshot{ContentHash: "h", RawContent: "one"}

	inserted, err := store.InsertSnapshot(ctx, first)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertSnapshot(ctx, monitor.Snapshot{ContentHash: "h", RawContent: "two"})
	require.NoError(t, err)
	require.False(t, inserted)

	got, err := store.GetSnapshot(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, "one", got.RawContent)

	_, err = store.GetSnapshot(ctx, "nope")
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestStoreVerdicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []monitor.ChangeType{monitor.ChangeNone, monitor.ChangeContent} {
		require.NoError(t, store.CreateVerdict(ctx, monitor.Verdict{
			ID:        string(rune('a' + i)),
			TargetID:  "t",
			Type:      typ,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	verdicts, err := store.ListVerdicts(ctx, "t", 0)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	require.Equal(t, monitor.ChangeContent, verdicts[0].Type)
}

func TestStoreRecordCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	check := monitor.CheckAttempt{ID: "c1", TargetID: "t1", Attempt: 1, Status: monitor.CheckStatusSuccess, Timestamp: at}
	verdict := monitor.Verdict{ID: "v1", CheckAttemptID: "c1", TargetID: "t1", Type: monitor.ChangeNone}

	// Unknown target writes nothing.
	require.ErrorIs(t, store.RecordCheck(ctx, check, verdict), monitor.ErrNotFound)
	checks, err := store.ListChecks(ctx, "t1", 0)
	require.NoError(t, err)
	require.Empty(t, checks)

	require.NoError(t, store.CreateTarget(ctx, monitor.Target{ID: "t1", Enabled: true}))
	require.NoError(t, store.RecordCheck(ctx, check, verdict))

	checks, err = store.ListChecks(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	verdicts, err := store.ListVerdicts(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.Equal(t, "c1", verdicts[0].CheckAttemptID)
	target, err := store.GetTarget(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, at, *target.LastCheckedAt)
}
