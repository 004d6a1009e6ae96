package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithDB(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "database.dsn is required")

	_, err = NewWithDB(nil)
	require.Error(t, err)
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS targets").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithDB(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSnapshotIsIdempotent(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	snap := monitor.Snapshot{ContentHash: "abc", RawContent: "<p>x</p>", NormalizedContent: "<p>x</p>", FirstSeenAt: now}

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(snap.ContentHash, snap.RawContent, snap.NormalizedContent, snap.FirstSeenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("ON CONFLICT \\(content_hash\\) DO NOTHING").
		WithArgs(snap.ContentHash, snap.RawContent, snap.NormalizedContent, snap.FirstSeenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.InsertSnapshot(context.Background(), snap)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.InsertSnapshot(context.Background(), snap)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTargetNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM targets WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetTarget(context.Background(), "missing")
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTargetsEnabledOnly(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1700000000, 0).UTC()
	checked := created.Add(time.Hour)
	rows := pgxmock.NewRows([]string{"id", "url", "name", "enabled", "check_interval_minutes", "last_checked_at", "created_at"}).
		AddRow("t1", "https://a.test", "A", true, 5, &checked, created).
		AddRow("t2", "https://b.test", "B", true, 60, (*time.Time)(nil), created)
	mock.ExpectQuery("FROM targets").WithArgs(true).WillReturnRows(rows)

	targets, err := store.ListTargets(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, "t1", targets[0].ID)
	require.Equal(t, checked, *targets[0].LastCheckedAt)
	require.Nil(t, targets[1].LastCheckedAt)
	require.Equal(t, 60, targets[1].CheckIntervalMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTargetMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE targets").
		WithArgs("t1", "https://a.test", "A", false, 10).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateTarget(context.Background(), monitor.Target{ID: "t1", URL: "https://a.test", Name: "A", CheckIntervalMinutes: 10})
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCheckAndList(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	code := 200
	check := monitor.CheckAttempt{
		ID: "c1", TargetID: "t1", Attempt: 1, Status: monitor.CheckStatusSuccess,
		ResponseTimeMs: 120, StatusCode: &code, ContentHash: "abc", Timestamp: now,
	}
	mock.ExpectExec("INSERT INTO check_attempts").
		WithArgs("c1", "t1", 1, "SUCCESS", int64(120), &code, "", "abc", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.CreateCheck(context.Background(), check))

	rows := pgxmock.NewRows([]string{
		"id", "target_id", "attempt", "status", "response_time_ms", "status_code",
		"error", "content_hash", "screenshot_uri", "checked_at",
	}).AddRow("c1", "t1", 1, "SUCCESS", int64(120), &code, "", "abc", "", now)
	mock.ExpectQuery("FROM check_attempts").WithArgs("t1", nil).WillReturnRows(rows)

	checks, err := store.ListChecks(context.Background(), "t1", 0)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	require.Equal(t, monitor.CheckStatusSuccess, checks[0].Status)
	require.Equal(t, 200, *checks[0].StatusCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCheckCommitsAttemptVerdictAndTarget(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	check := monitor.CheckAttempt{ID: "c1", TargetID: "t1", Attempt: 1, Status: monitor.CheckStatusSuccess, Timestamp: now}
	verdict := monitor.Verdict{ID: "v1", CheckAttemptID: "c1", TargetID: "t1", Type: monitor.ChangeNone, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO check_attempts").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO verdicts").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE targets SET last_checked_at").
		WithArgs("t1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.RecordCheck(context.Background(), check, verdict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCheckRollsBackWhenVerdictFails(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	check := monitor.CheckAttempt{ID: "c1", TargetID: "t1", Attempt: 1, Status: monitor.CheckStatusSuccess, Timestamp: now}
	verdict := monitor.Verdict{ID: "v1", CheckAttemptID: "c1", TargetID: "t1", Type: monitor.ChangeFormDetected, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO check_attempts").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO verdicts").WillReturnError(errors.New("invalid byte sequence for encoding \"UTF8\""))
	mock.ExpectRollback()

	err := store.RecordCheck(context.Background(), check, verdict)
	require.ErrorContains(t, err, "insert verdict")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCheckRollsBackForMissingTarget(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	check := monitor.CheckAttempt{ID: "c1", TargetID: "gone", Attempt: 1, Status: monitor.CheckStatusSuccess, Timestamp: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO check_attempts").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO verdicts").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE targets SET last_checked_at").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.RecordCheck(context.Background(), check, monitor.Verdict{ID: "v1", TargetID: "gone"})
	require.ErrorIs(t, err, monitor.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSuccessfulCheckNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM check_attempts").
		WithArgs("t1", "SUCCESS").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.LatestSuccessfulCheck(context.Background(), "t1")
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestCreateVerdictEncodesFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	v := monitor.Verdict{
		ID: "v1", CheckAttemptID: "c1", TargetID: "t1", HasChanged: true,
		Type: monitor.ChangeFormDetected, Priority: monitor.PriorityCritical, Confidence: 0.95,
		Similarity: 0.5, Description: "HTML application form detected", FormType: "HTML",
		FormFields: []monitor.FormField{{Name: "email", Type: "email", Required: true}},
		CreatedAt:  now,
	}
	mock.ExpectExec("INSERT INTO verdicts").
		WithArgs("v1", "c1", "t1", true, "FORM_DETECTED", "CRITICAL", 0.95, 0.5,
			"HTML application form detected", "", []string{}, "HTML",
			[]byte(`[{"name":"email","type":"email","required":true}]`), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateVerdict(context.Background(), v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListVerdictsDecodesFields(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "check_attempt_id", "target_id", "has_changed", "change_type", "priority", "confidence",
		"similarity", "description", "diff", "matched_keywords", "form_type", "form_fields", "created_at",
	}).AddRow("v1", "c1", "t1", true, "KEYWORD_MATCH", "CRITICAL", 0.92, 0.8,
		"critical keywords: registration", "-a\n+b", []string{"registration"}, "", []byte(`[]`), now)
	mock.ExpectQuery("FROM verdicts").WithArgs("t1", 10).WillReturnRows(rows)

	verdicts, err := store.ListVerdicts(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	require.Equal(t, monitor.ChangeKeywordMatch, verdicts[0].Type)
	require.Equal(t, []string{"registration"}, verdicts[0].MatchedKeywords)
	require.Nil(t, verdicts[0].FormFields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO settings").
		WithArgs("check_interval_minutes", "10").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT key, value FROM settings").
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).AddRow("check_interval_minutes", "10"))

	require.NoError(t, store.SaveSetting(context.Background(), "check_interval_minutes", "10"))
	values, err := store.LoadSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"check_interval_minutes": "10"}, values)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE targets SET last_checked_at").
		WithArgs("t1", pgxmock.AnyArg()).
		WillReturnError(errors.New("conn reset"))

	err := store.MarkChecked(context.Background(), "t1", time.Now())
	require.ErrorContains(t, err, "mark checked: conn reset")
}
