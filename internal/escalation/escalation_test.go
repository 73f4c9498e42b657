package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rogersf/ticketflow/internal/domain"
	"github.com/rogersf/ticketflow/internal/store"
)

type recordingSink struct {
	got []domain.EscalationRecord
	err error
}

func (s *recordingSink) Escalate(_ context.Context, rec domain.EscalationRecord) error {
	s.got = append(s.got, rec)
	return s.err
}

func TestJoinAttempts(t *testing.T) {
	assert.Equal(t, "", JoinAttempts(nil))
	assert.Equal(t, "[attempt 1] a", JoinAttempts([]string{"a"}))
	assert.Equal(t, "[attempt 1] a\n---\n[attempt 2] b", JoinAttempts([]string{"a", "b"}))
}

func TestMultiSink_AllSinksAttempted(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingSink{err: boom}
	second := &recordingSink{}

	err := MultiSink{first, second}.Escalate(context.Background(), sampleRecord("run-1"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.got, 1)
	assert.Len(t, second.got, 1, "later sinks still receive the record")
}

func TestMultiSink_Success(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	require.NoError(t, MultiSink{a, b}.Escalate(context.Background(), sampleRecord("run-1")))
	assert.Equal(t, "run-1", b.got[0].RunID)
}

func TestSQLiteSink_Escalate(t *testing.T) {
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sink := NewSQLiteSink(db)
	require.NoError(t, sink.Escalate(ctx, sampleRecord("run-1")))

	got, err := sink.Repo.GetByRun(ctx, db, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryBilling, got.Category)
	assert.Equal(t, []string{"Hi there,\nfirst draft", "second draft"}, got.Drafts)

	// The same run cannot be escalated twice.
	assert.Error(t, sink.Escalate(ctx, sampleRecord("run-1")))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Escalate(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)
	rec := sampleRecord("run-42")

	require.NoError(t, sink.Escalate(context.Background(), rec))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "run-42", string(w.msgs[0].Key))

	var decoded domain.EscalationRecord
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, rec.Drafts, decoded.Drafts)
	assert.Equal(t, rec.Attempts, decoded.Attempts)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_WriteFailure(t *testing.T) {
	sink := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("no brokers")})
	err := sink.Escalate(context.Background(), sampleRecord("run-1"))
	assert.ErrorContains(t, err, "publish escalation")
}

func TestNewKafkaSink_ConfiguresWriter(t *testing.T) {
	sink := NewKafkaSink([]string{"localhost:9092"}, "ticket-escalations")
	w, ok := sink.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ticket-escalations", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
