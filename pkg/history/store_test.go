package history

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/diagnose"
	"github.com/AarenWang/haifa-ai/pkg/models"
)

// newTestStore connects to an external database when CI_DATABASE_URL
// is set, otherwise spins up a throwaway Postgres container.
func newTestStore(t *testing.T) *Store {
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	store, err := NewStoreFromDSN(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testResult(sessionID, service, category, stopReason string) *diagnose.Result {
	return &diagnose.Result{
		EvidencePack: &models.EvidencePack{
			Meta: models.PackMeta{
				SessionID: sessionID,
				Host:      "host01",
				Service:   service,
				Env:       "prod",
				Platform:  "linux",
			},
			Hypothesis: []models.Hypothesis{{Category: category, Confidence: 0.8}},
		},
		Report: &models.DiagnosisReport{
			RootCause: models.RootCause{Category: category, Summary: "test", Confidence: 0.8},
		},
		Trace: &diagnose.Trace{SessionID: sessionID, StopReason: stopReason},
	}
}

func TestSaveAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := testResult("sess-001", "nginx", "IO_WAIT", "confidence_threshold_reached")
	require.NoError(t, store.SaveSession(ctx, res))

	rec, err := store.GetSession(ctx, "sess-001")
	require.NoError(t, err)
	assert.Equal(t, "host01", rec.Host)
	assert.Equal(t, "nginx", rec.Service)
	assert.Equal(t, "IO_WAIT", rec.PrimaryCategory)
	assert.Equal(t, "confidence_threshold_reached", rec.StopReason)
	assert.False(t, rec.CreatedAt.IsZero())

	var report models.DiagnosisReport
	require.NoError(t, json.Unmarshal(rec.Report, &report))
	assert.Equal(t, "IO_WAIT", report.RootCause.Category)
}

func TestSaveSessionIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testResult("sess-002", "nginx", "CPU", "max_rounds_reached")))
	require.NoError(t, store.SaveSession(ctx, testResult("sess-002", "nginx", "MEMORY", "llm_stop")))

	rec, err := store.GetSession(ctx, "sess-002")
	require.NoError(t, err)
	assert.Equal(t, "MEMORY", rec.PrimaryCategory)
	assert.Equal(t, "llm_stop", rec.StopReason)
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAndGetExecutions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []audit.Entry{
		{SessionID: "sess-x1", ID: "uptime-100", CmdID: "uptime", Cmd: "uptime", ElapsedMS: 12, OutputHash: "abc"},
		{SessionID: "sess-x1", ID: "iostat-101", CmdID: "iostat", Cmd: "iostat -x 1 3", ElapsedMS: 2100, OutputHash: "def"},
	}
	require.NoError(t, store.SaveExecutions(ctx, "sess-x1", entries))
	// Replaying the same entries is a no-op.
	require.NoError(t, store.SaveExecutions(ctx, "sess-x1", entries))

	got, err := store.GetExecutions(ctx, "sess-x1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "uptime-100", got[0].ID)
	assert.Equal(t, "iostat", got[1].CmdID)
	assert.Equal(t, int64(2100), got[1].ElapsedMS)
}

func TestListSessionsByService(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, testResult("sess-l1", "api-gw", "CPU", "llm_stop")))
	require.NoError(t, store.SaveSession(ctx, testResult("sess-l2", "api-gw", "IO_WAIT", "llm_stop")))
	require.NoError(t, store.SaveSession(ctx, testResult("sess-l3", "other", "MEMORY", "llm_stop")))

	recs, err := store.ListSessions(ctx, "api-gw", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "api-gw", rec.Service)
	}

	all, err := store.ListSessions(ctx, "", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 3)
}
