package escalation

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogersf/ticketflow/internal/domain"
)

func sampleRecord(runID string) domain.EscalationRecord {
	return domain.EscalationRecord{
		RunID:       runID,
		Timestamp:   time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		Subject:     "Payment failed on checkout",
		Description: "I tried to pay with my card, but \"it\" didn't go through.",
		Category:    domain.CategoryBilling,
		Attempts:    2,
		Drafts:      []string{"Hi there,\nfirst draft", "second draft"},
		Feedback:    []string{"Policy violation", "Policy violation again"},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSink_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "escalations.csv")
	sink := NewCSVSink(path)
	ctx := context.Background()

	require.NoError(t, sink.Escalate(ctx, sampleRecord("run-1")))
	require.NoError(t, sink.Escalate(ctx, sampleRecord("run-2")))

	// A fresh sink on the same file must not write another header.
	require.NoError(t, NewCSVSink(path).Escalate(ctx, sampleRecord("run-3")))

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "run-1", rows[1][1])
	assert.Equal(t, "run-3", rows[3][1])
}

func TestCSVSink_RowContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escalations.csv")
	require.NoError(t, NewCSVSink(path).Escalate(context.Background(), sampleRecord("run-1")))

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	row := rows[1]

	assert.Equal(t, "2026-05-04T10:30:00Z", row[0])
	assert.Equal(t, "I tried to pay with my card, but \"it\" didn't go through.", row[3])
	assert.Equal(t, "Billing", row[4])
	assert.Equal(t, "2", row[5])
	assert.Equal(t, "[attempt 1] Hi there,\nfirst draft\n---\n[attempt 2] second draft", row[6])
	assert.Equal(t, "[attempt 1] Policy violation\n---\n[attempt 2] Policy violation again", row[7])
}

func TestCSVSink_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escalations.csv")
	sink := NewCSVSink(path)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, sink.Escalate(ctx, sampleRecord(fmt.Sprintf("run-%d", i))))
		}(i)
	}
	wg.Wait()

	rows := readCSV(t, path)
	require.Len(t, rows, n+1)
	seen := map[string]bool{}
	for _, row := range rows[1:] {
		require.Len(t, row, len(CSVHeader))
		seen[row[1]] = true
	}
	assert.Len(t, seen, n)
}

func TestCSVSink_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// A regular file where a directory is expected.
	err := NewCSVSink(filepath.Join(blocker, "escalations.csv")).Escalate(context.Background(), sampleRecord("run-1"))
	assert.Error(t, err)
}

func TestCSVSink_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escalations.csv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, NewCSVSink(path).Escalate(ctx, sampleRecord("run-1")), context.Canceled)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file should not be created")
}
