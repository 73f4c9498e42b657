package escalation

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rogersf/ticketflow/internal/domain"
)

// CSVHeader is written once, when the log file is created.
var CSVHeader = []string{"timestamp", "run_id", "subject", "description", "category", "attempts", "drafts", "feedback"}

// CSVSink appends escalation rows to a CSV file.
//
// Appends are serialized within the process, and each row is emitted with a
// single write on an O_APPEND descriptor so rows from concurrent runs never
// interleave. The header check is not coordinated across processes, so each
// process needs its own file.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

// NewCSVSink creates a sink writing to path. Parent directories are created on
// first append.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Path returns the log file location.
func (s *CSVSink) Path() string {
	return s.path
}

// Escalate implements Sink.
func (s *CSVSink) Escalate(ctx context.Context, rec domain.EscalationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create escalation log dir: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open escalation log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat escalation log: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("encode header: %w", err)
		}
	}
	if err := w.Write(csvRow(rec)); err != nil {
		return fmt.Errorf("encode escalation row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode escalation row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append escalation row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync escalation log: %w", err)
	}
	return nil
}

func csvRow(rec domain.EscalationRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.RunID,
		rec.Subject,
		rec.Description,
		string(rec.Category),
		strconv.Itoa(rec.Attempts),
		JoinAttempts(rec.Drafts),
		JoinAttempts(rec.Feedback),
	}
}
