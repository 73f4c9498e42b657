package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rogersf/ticketflow/internal/domain"
	"github.com/rogersf/ticketflow/internal/telemetry"
)

const tracerName = "github.com/rogersf/ticketflow/internal/workflow"

// Classifier maps ticket text to one of the fixed categories.
type Classifier interface {
	Classify(ctx context.Context, subject, description string) (domain.Category, error)
}

// KnowledgeProvider returns the ordered suggestions for a category.
type KnowledgeProvider interface {
	Retrieve(ctx context.Context, category domain.Category) ([]string, error)
}

// Refiner adjusts retrieved suggestions before a retry.
type Refiner interface {
	Refine(ctx context.Context, category domain.Category, suggestions []string, last domain.ReviewOutcome) ([]string, error)
}

// Composer renders a draft response.
type Composer interface {
	Compose(ctx context.Context, ticket domain.Ticket, suggestions []string) (string, error)
}

// Reviewer judges a draft against policy.
type Reviewer interface {
	Review(ctx context.Context, draft string) (domain.ReviewOutcome, error)
}

// ViolationLister is an optional Reviewer extension that reports every rule a
// draft breaks, not just the first. Rejections record the list in the
// journal detail.
type ViolationLister interface {
	Violations(draft string) []string
}

// EscalationSink durably appends the record of an escalated ticket.
type EscalationSink interface {
	Escalate(ctx context.Context, rec domain.EscalationRecord) error
}

// Journal receives one event per stage transition.
type Journal interface {
	Append(ctx context.Context, event domain.RunEvent) error
}

// Collaborators groups the components the engine drives. Refiner is optional.
type Collaborators struct {
	Classifier Classifier
	Knowledge  KnowledgeProvider
	Refiner    Refiner
	Composer   Composer
	Reviewer   Reviewer
	Sink       EscalationSink
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRetryLimit sets the number of review passes before escalation.
func WithRetryLimit(n int) Option {
	return func(e *Engine) { e.retry.Limit = n }
}

// WithJournal records every transition to j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for records and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// Engine runs tickets through the pipeline. It holds no per-run state and is
// safe for concurrent use by independent runs.
type Engine struct {
	c       Collaborators
	retry   RetryPolicy
	journal Journal
	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	newID   func() string
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(c Collaborators, opts ...Option) (*Engine, error) {
	e := &Engine{
		c:      c,
		retry:  RetryPolicy{Limit: DefaultRetryLimit},
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}

	var problems []string
	if c.Classifier == nil {
		problems = append(problems, "classifier is required")
	}
	if c.Knowledge == nil {
		problems = append(problems, "knowledge provider is required")
	}
	if c.Composer == nil {
		problems = append(problems, "composer is required")
	}
	if c.Reviewer == nil {
		problems = append(problems, "reviewer is required")
	}
	if c.Sink == nil {
		problems = append(problems, "escalation sink is required")
	}
	if e.retry.Limit < 1 {
		problems = append(problems, fmt.Sprintf("retry limit must be at least 1, got %d", e.retry.Limit))
	}
	if len(problems) > 0 {
		return nil, &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return e, nil
}

// RetryLimit returns the configured retry limit.
func (e *Engine) RetryLimit() int {
	return e.retry.Limit
}

// run is the mutable record of a single ticket run. It is owned by one
// goroutine for the lifetime of Run.
type run struct {
	state  domain.WorkflowState
	stage  domain.Stage
	seq    int64
	logger *slog.Logger
}

// stageUpdate carries the fields a stage produced. Nil fields are unchanged.
type stageUpdate struct {
	category    *domain.Category
	suggestions []string
	retrieved   bool
	draft       *string
	outcome     *domain.ReviewOutcome
}

// Run processes ticket to completion. It returns either a terminal result or
// an *domain.EngineError naming the stage that failed, never both.
func (e *Engine) Run(ctx context.Context, ticket domain.Ticket) (*domain.TerminalResult, error) {
	if !ticket.WellFormed() {
		return nil, domain.ErrInvalidTicket
	}

	runID := e.newID()
	r := &run{
		state: domain.WorkflowState{
			RunID:           runID,
			Ticket:          ticket,
			Suggestions:     []string{},
			DraftHistory:    []string{},
			FeedbackHistory: []string{},
		},
		stage:  domain.StageClassifying,
		logger: e.logger.With(slog.String("run_id", runID)),
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ticket.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	r.logger.Info("run started", slog.String("subject", ticket.Subject))

	for !r.stage.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(span, r, domain.StageError(domain.ErrRunCancelled, r.stage, err))
		}

		from := r.stage
		next, detail, err := e.step(ctx, r)
		if err != nil {
			return nil, e.fail(span, r, err)
		}
		if !IsValidTransition(from, next) {
			return nil, e.fail(span, r, &domain.EngineError{
				Code:    domain.ErrInvalidTransition.Code,
				Stage:   from,
				Message: fmt.Sprintf("illegal transition %s -> %s", from, next),
			})
		}

		r.stage = next
		e.record(ctx, r, from, next, detail)
	}

	switch r.stage {
	case domain.StageTerminatedApproved:
		r.state.TerminalStatus = domain.StatusApproved
	case domain.StageTerminatedEscalated:
		r.state.TerminalStatus = domain.StatusEscalated
	}

	span.SetAttributes(
		attribute.String("status", string(r.state.TerminalStatus)),
		attribute.Int("attempts", r.state.Attempts),
		attribute.String("category", string(r.state.Category)),
	)
	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(string(r.state.TerminalStatus)).Inc()
		e.metrics.Attempts.Observe(float64(r.state.Attempts))
	}
	r.logger.Info("run finished",
		slog.String("status", string(r.state.TerminalStatus)),
		slog.String("category", string(r.state.Category)),
		slog.Int("attempts", r.state.Attempts))

	return &domain.TerminalResult{State: r.state, Status: r.state.TerminalStatus}, nil
}

// step executes the current stage, applies its update and returns the next
// stage along with audit detail for the journal.
func (e *Engine) step(ctx context.Context, r *run) (domain.Stage, map[string]any, error) {
	stage := r.stage
	ctx, span := otel.Tracer(tracerName).Start(ctx, "stage."+string(stage),
		trace.WithAttributes(attribute.Int("attempts", r.state.Attempts)))
	defer span.End()

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
		}
	}()

	var (
		upd    stageUpdate
		next   domain.Stage
		detail map[string]any
		err    error
	)
	switch stage {
	case domain.StageClassifying:
		upd, err = e.classify(ctx, r.state)
		next = domain.StageRetrievingContext
		if err == nil {
			detail = map[string]any{"category": *upd.category}
		}
	case domain.StageRetrievingContext:
		upd, err = e.retrieve(ctx, r.state)
		next = domain.StageComposing
		detail = map[string]any{"suggestions": len(upd.suggestions)}
	case domain.StageComposing:
		upd, err = e.compose(ctx, r.state)
		next = domain.StageReviewing
	case domain.StageReviewing:
		upd, err = e.review(ctx, r.state)
		if err == nil {
			// Attempts is incremented by apply, so the rule sees this pass.
			next = e.retry.Next(*upd.outcome, r.state.Attempts+1)
			detail = map[string]any{"approved": upd.outcome.Approved, "reason": upd.outcome.Reason}
			if vl, ok := e.c.Reviewer.(ViolationLister); ok && !upd.outcome.Approved {
				detail["violations"] = vl.Violations(r.state.Draft)
			}
		}
	case domain.StageEscalating:
		err = e.escalate(ctx, r.state)
		next = domain.StageTerminatedEscalated
	default:
		err = &domain.EngineError{
			Code:    domain.ErrInvalidTransition.Code,
			Stage:   stage,
			Message: "no handler for stage",
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	if err := apply(&r.state, upd); err != nil {
		return "", nil, err
	}
	return next, detail, nil
}

// apply folds a stage update into the run's state, maintaining the history
// and attempt invariants.
func apply(s *domain.WorkflowState, u stageUpdate) error {
	if u.category != nil {
		if s.Category != "" && s.Category != *u.category {
			return &domain.EngineError{
				Code:    domain.ErrInvalidTransition.Code,
				Stage:   domain.StageClassifying,
				Message: fmt.Sprintf("category already set to %s", s.Category),
			}
		}
		s.Category = *u.category
	}
	if u.retrieved {
		s.Suggestions = u.suggestions
	}
	if u.draft != nil {
		s.Draft = *u.draft
		s.DraftHistory = append(s.DraftHistory, *u.draft)
	}
	if u.outcome != nil {
		s.ReviewOutcome = *u.outcome
		s.FeedbackHistory = append(s.FeedbackHistory, u.outcome.Reason)
		s.Attempts++
	}
	return nil
}

func (e *Engine) classify(ctx context.Context, s domain.WorkflowState) (stageUpdate, error) {
	cat, err := e.c.Classifier.Classify(ctx, s.Ticket.Subject, s.Ticket.Description)
	if err != nil {
		return stageUpdate{}, domain.StageError(domain.ErrCollaborator, domain.StageClassifying, err)
	}
	if !cat.Valid() {
		return stageUpdate{}, domain.StageError(domain.ErrClassification, domain.StageClassifying,
			fmt.Errorf("got %q", cat))
	}
	return stageUpdate{category: &cat}, nil
}

func (e *Engine) retrieve(ctx context.Context, s domain.WorkflowState) (stageUpdate, error) {
	suggestions, err := e.c.Knowledge.Retrieve(ctx, s.Category)
	if err != nil {
		return stageUpdate{}, domain.StageError(domain.ErrCollaborator, domain.StageRetrievingContext, err)
	}
	if s.Attempts > 0 && e.c.Refiner != nil {
		suggestions, err = e.c.Refiner.Refine(ctx, s.Category, clone(suggestions), s.ReviewOutcome)
		if err != nil {
			return stageUpdate{}, domain.StageError(domain.ErrCollaborator, domain.StageRetrievingContext, err)
		}
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return stageUpdate{suggestions: suggestions, retrieved: true}, nil
}

func (e *Engine) compose(ctx context.Context, s domain.WorkflowState) (stageUpdate, error) {
	draft, err := e.c.Composer.Compose(ctx, s.Ticket, clone(s.Suggestions))
	if err != nil {
		return stageUpdate{}, domain.StageError(domain.ErrCollaborator, domain.StageComposing, err)
	}
	return stageUpdate{draft: &draft}, nil
}

func (e *Engine) review(ctx context.Context, s domain.WorkflowState) (stageUpdate, error) {
	outcome, err := e.c.Reviewer.Review(ctx, s.Draft)
	if err != nil {
		return stageUpdate{}, domain.StageError(domain.ErrCollaborator, domain.StageReviewing, err)
	}
	return stageUpdate{outcome: &outcome}, nil
}

func (e *Engine) escalate(ctx context.Context, s domain.WorkflowState) error {
	rec := domain.NewEscalationRecord(s, e.now())
	if err := e.c.Sink.Escalate(ctx, rec); err != nil {
		return domain.StageError(domain.ErrPersistence, domain.StageEscalating, err)
	}
	return nil
}

// record reports a transition to the journal. Journal failures are logged and
// do not affect the run.
func (e *Engine) record(ctx context.Context, r *run, from, to domain.Stage, detail map[string]any) {
	r.logger.Debug("transition",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.Int("attempts", r.state.Attempts))

	if e.journal == nil {
		return
	}
	r.seq++
	payload := "{}"
	if len(detail) > 0 {
		if b, err := json.Marshal(detail); err == nil {
			payload = string(b)
		}
	}
	ev := domain.RunEvent{
		RunID:      r.state.RunID,
		SeqNo:      r.seq,
		FromStage:  from,
		ToStage:    to,
		Attempts:   r.state.Attempts,
		DetailJSON: payload,
		CreatedAt:  e.now().Unix(),
	}
	if err := e.journal.Append(ctx, ev); err != nil {
		r.logger.Warn("journal append failed", slog.Int64("seq", r.seq), slog.Any("error", err))
	}
}

func (e *Engine) fail(span trace.Span, r *run, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if e.metrics != nil {
		e.metrics.RunFailures.WithLabelValues(string(r.stage)).Inc()
	}
	r.logger.Error("run failed", slog.String("stage", string(r.stage)), slog.Any("error", err))
	return err
}

func clone(s []string) []string {
	return append([]string{}, s...)
}
