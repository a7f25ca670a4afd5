package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datalogger/internal/store"
	"github.com/roach88/datalogger/internal/testutil"
)

// runWith executes the run command with fixed capture IDs.
func runWith(t *testing.T, opts *RunOptions, plan string) (string, error) {
	t.Helper()
	if opts.IDs == nil {
		opts.IDs = testutil.CaptureIDs(4)
	}
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	err := runCapture(opts, plan, cmd)
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "captures.db")
}

func TestRun_RAMPlanArchivesCapture(t *testing.T) {
	db := tempDB(t)
	out, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}, Database: db}, "testdata/plans/bench.cue")
	require.NoError(t, err)
	assert.Contains(t, out, `✓ Capture capture-0001 (#1) of plan "bench"`)
	assert.Contains(t, out, "mode ram, state DataReady, 4 tick(s), 8 byte(s)")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	c, err := st.ReadCapture(context.Background(), "capture-0001")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 1, 2, 1, 2}, c.Data)
	assert.Equal(t, "bench", c.Plan.Name)
	require.Len(t, c.Channels, 2)
	assert.Equal(t, uint32(20), c.Channels[1].ChannelID)
}

func TestRun_MemPlanJSON(t *testing.T) {
	db := tempDB(t)
	out, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "json"}, Database: db}, "testdata/plans/flash.cue")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "capture-0001", resp.Data.ID)
	assert.Equal(t, "mem", resp.Data.Mode)
	assert.Equal(t, "DataReady", resp.Data.State)
	assert.False(t, resp.Data.Overrun)
	assert.Equal(t, 20, resp.Data.Bytes)
}

func TestRun_SequenceAcrossRuns(t *testing.T) {
	db := tempDB(t)
	ids := testutil.CaptureIDs(2)
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, Database: db, IDs: ids}

	_, err := runWith(t, opts, "testdata/plans/bench.cue")
	require.NoError(t, err)
	out, err := runWith(t, opts, "testdata/plans/flash.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "capture-0002 (#2)")
}

func TestRun_Realtime(t *testing.T) {
	out, err := runWith(t, &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    tempDB(t),
		Realtime:    true,
		Timeout:     5 * time.Second,
	}, "testdata/plans/bench.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "state DataReady")
}

func TestRun_InvalidPlan(t *testing.T) {
	out, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}, Database: tempDB(t)}, "testdata/plans/invalid.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Plan \"invalid\" invalid")
}

func TestRun_CompileError(t *testing.T) {
	_, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}, Database: tempDB(t)}, "testdata/plans/broken.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to compile plan")
}

func TestRun_LayoutFailureReportsEngineCode(t *testing.T) {
	out, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "json"}, Database: tempDB(t)}, "testdata/plans/tight.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E16", resp.Error.Code)
}

func TestRun_BadDatabasePath(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing", "dir", "captures.db")
	_, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "text"}, Database: db}, "testdata/plans/bench.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestRun_MissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, "run", "testdata/plans/bench.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}
