package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "datalogger", cmd.Use)
	assert.Contains(t, cmd.Long, "capture plans")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"validate"},
		{"run"},
		{"captures"},
		{"captures", "list"},
		{"captures", "show"},
		{"captures", "delete"},
		{"test"},
		{"version"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dbFlag := runCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	realtimeFlag := runCmd.Flags().Lookup("realtime")
	require.NotNil(t, realtimeFlag)
	assert.Equal(t, "false", realtimeFlag.DefValue)

	timeoutFlag := runCmd.Flags().Lookup("timeout")
	require.NotNil(t, timeoutFlag)
	assert.Equal(t, "0s", timeoutFlag.DefValue)
}

func TestCapturesCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	capturesCmd, _, err := cmd.Find([]string{"captures"})
	require.NoError(t, err)
	require.NotNil(t, capturesCmd.PersistentFlags().Lookup("db"))

	listCmd, _, err := cmd.Find([]string{"captures", "list"})
	require.NoError(t, err)
	require.NotNil(t, listCmd.Flags().Lookup("plan"))

	showCmd, _, err := cmd.Find([]string{"captures", "show"})
	require.NoError(t, err)
	require.NotNil(t, showCmd.Flags().Lookup("data"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "version"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"text", "datalogger engine 0.5.0, plan format 1\n"},
		{"json", "{\n  \"status\": \"ok\",\n  \"data\": {\n    \"engine\": \"0.5.0\",\n    \"plan\": \"1\"\n  }\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			cmd := NewRootCommand()
			cmd.SetOut(buf)
			cmd.SetArgs([]string{"--format", tt.format, "version"})

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	newLogger(&RootOptions{}, buf).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(&RootOptions{Verbose: true}, buf).Debug("shown", "slot", 3)
	assert.Contains(t, buf.String(), "level=DEBUG msg=shown slot=3")
}
