package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogersf/ticketflow/internal/config"
	"github.com/rogersf/ticketflow/internal/domain"
	"github.com/rogersf/ticketflow/internal/escalation"
	"github.com/rogersf/ticketflow/internal/store"
)

// writeConfig writes a config rooted in a temp dir and returns its path and
// the dir.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	body := "log:\n  level: error\n" +
		"store:\n  db_path: " + filepath.Join(dir, "ticketflow.db") + "\n" +
		"escalation:\n  sinks: [csv, sqlite]\n  csv_path: " + filepath.Join(dir, "logs", "escalations.csv") + "\n" +
		extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := rootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ticketflow dev"), out)
}

func TestRunCommand_Approved(t *testing.T) {
	path, _ := writeConfig(t, "")
	out, _, err := execute(t, "--config", path, "run",
		"--subject", "Login issue",
		"--description", "I forgot my password and cannot log in.")
	require.NoError(t, err)

	var result domain.TerminalResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.StatusApproved, result.Status)
	assert.Equal(t, domain.CategorySecurity, result.State.Category)
	assert.Contains(t, result.State.Draft, "Reset your password and enable 2FA.")
}

func TestRunCommand_EscalatesToEverySink(t *testing.T) {
	path, dir := writeConfig(t, "review:\n  prohibited_terms: [payment]\n")
	out, _, err := execute(t, "--config", path, "run",
		"--subject", "Payment failed on checkout",
		"--description", "I tried to pay with my card but it didn't go through.")
	require.NoError(t, err)

	var result domain.TerminalResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, domain.StatusEscalated, result.Status)
	assert.Equal(t, 2, result.State.Attempts)
	assert.Len(t, result.State.DraftHistory, 2)
	assert.Contains(t, result.State.DraftHistory[1], "Please contact billing support for refunds.")

	f, err := os.Open(filepath.Join(dir, "logs", "escalations.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, result.State.RunID, rows[1][1])

	db, err := store.NewDB(filepath.Join(dir, "ticketflow.db"))
	require.NoError(t, err)
	defer db.Close()
	rec, err := (&store.EscalationRepo{}).GetByRun(context.Background(), db, result.State.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryBilling, rec.Category)

	events, err := store.NewRunJournal(db).Events(context.Background(), result.State.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageTerminatedEscalated, events[len(events)-1].ToStage)
}

func TestRunCommand_BlankTicket(t *testing.T) {
	path, _ := writeConfig(t, "")
	_, _, err := execute(t, "--config", path, "run")
	assert.ErrorIs(t, err, domain.ErrInvalidTicket)
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	path, _ := writeConfig(t, "workflow:\n  retry_limit: 0\n")
	_, _, err := execute(t, "--config", path, "run", "--subject", "hi")
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestRunCommand_LogLevelFlagValidated(t *testing.T) {
	path, _ := writeConfig(t, "")
	_, _, err := execute(t, "--config", path, "--log-level", "verbose", "run",
		"--subject", "Login issue", "--description", "I forgot my password.")
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "verbose")
}

func TestNewApp_KnowledgeTableFromFile(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "knowledge.yaml")
	require.NoError(t, os.WriteFile(table, []byte("General:\n  - Our docs live at docs.example.com.\n"), 0o644))

	path, _ := writeConfig(t, "knowledge:\n  table_path: "+table+"\n")
	cfg, err := config.Load(path)
	require.NoError(t, err)

	a, err := newApp(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.close(context.Background())

	result, err := a.engine.Run(context.Background(), domain.Ticket{Subject: "Hello", Description: "Question about my account settings."})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGeneral, result.State.Category)
	assert.Equal(t, []string{"Our docs live at docs.example.com."}, result.State.Suggestions)
}

func TestNewApp_SinkOrder(t *testing.T) {
	path, _ := writeConfig(t, "")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	cfg.Escalation.Sinks = []string{config.SinkSQLite, config.SinkKafka, config.SinkCSV}
	cfg.Escalation.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Escalation.Kafka.Topic = "escalations"

	a, err := newApp(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.close(context.Background())

	sinks := a.sinks()
	require.Len(t, sinks, 3)
	assert.IsType(t, &escalation.SQLiteSink{}, sinks[0])
	assert.IsType(t, &escalation.KafkaSink{}, sinks[1])
	require.IsType(t, &escalation.CSVSink{}, sinks[2])
	assert.Equal(t, cfg.Escalation.CSVPath, sinks[2].(*escalation.CSVSink).Path())
}

func TestNewApp_EscalationRepoFollowsSQLiteSink(t *testing.T) {
	tests := []struct {
		name    string
		sinks   []string
		wantNil bool
	}{
		{"csv_only", []string{config.SinkCSV}, true},
		{"csv_and_sqlite", []string{config.SinkCSV, config.SinkSQLite}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, _ := writeConfig(t, "")
			cfg, err := config.Load(path)
			require.NoError(t, err)
			cfg.Escalation.Sinks = tt.sinks

			a, err := newApp(cfg, &bytes.Buffer{})
			require.NoError(t, err)
			defer a.close(context.Background())

			h := a.handler()
			if tt.wantNil {
				assert.Nil(t, h.EscalationRepo)
			} else {
				assert.NotNil(t, h.EscalationRepo)
			}
		})
	}
}
