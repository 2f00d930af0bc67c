package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/syncengine/internal/journal"
	"example.com/syncengine/internal/value"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseScalarKinds(t *testing.T) {
	i, ok := parseScalar("42").AsInt()
	require.True(t, ok)
	require.Equal(t, int64(42), i)

	f, ok := parseScalar("42.5").AsFloat()
	require.True(t, ok)
	require.Equal(t, 42.5, f)

	b, ok := parseScalar("true").AsBool()
	require.True(t, ok)
	require.True(t, b)

	s, ok := parseScalar("deload week").AsString()
	require.True(t, ok)
	require.Equal(t, "deload week", s)
}

func TestParsePayload(t *testing.T) {
	payload, err := parsePayload([]string{"reps=8", "note=easy"})
	require.NoError(t, err)
	require.True(t, payload["reps"].Equal(value.Int(8)))
	require.True(t, payload["note"].Equal(value.String("easy")))

	_, err = parsePayload([]string{"no-separator"})
	require.Error(t, err)
}

func TestWorkoutStartCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/startActiveWorkout", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer cli-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"workout_id": "workout-9",
			"user_id":    "user-1",
			"exercises": []map[string]interface{}{
				{"exercise_instance_id": "ex-1", "exercise_id": "bench", "sets": []map[string]interface{}{
					{"set_id": "set-1", "status": "planned", "target_reps": 10},
				}},
			},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	t.Setenv("SYNC_BASE_URL", server.URL)
	t.Setenv("SYNC_TOKEN", "cli-token")

	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`
name: Push day
exercises:
  - exercise_id: bench
    name: Bench Press
    sets:
      - target_weight: 100
        target_reps: 10
        target_rir: 2
`), 0o600))

	out, err := execute(t, "workout", "start", "--plan", planPath)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "workout-9", decoded["workout_id"])
	require.Equal(t, float64(1), decoded["exercises"])
}

func TestJournalLsListsPendingRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	jnl, err := journal.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, jnl.Record(context.Background(), "workout-9", "log_completion", "key-1", nil))
	require.NoError(t, jnl.Close())

	t.Setenv("SYNC_JOURNAL_PATH", dbPath)
	t.Setenv("SYNC_TOKEN", "cli-token")

	out, err := execute(t, "journal", "ls")
	require.NoError(t, err)

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "key-1", rows[0]["idempotency_key"])
	require.Equal(t, "pending", rows[0]["status"])
}

func TestJournalLsWithoutJournalConfigured(t *testing.T) {
	t.Setenv("SYNC_JOURNAL_PATH", "")
	_, err := execute(t, "journal", "ls")
	require.Error(t, err)
}
