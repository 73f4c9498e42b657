package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rogersf/ticketflow/internal/classify"
	"github.com/rogersf/ticketflow/internal/compose"
	"github.com/rogersf/ticketflow/internal/config"
	"github.com/rogersf/ticketflow/internal/escalation"
	"github.com/rogersf/ticketflow/internal/guard"
	"github.com/rogersf/ticketflow/internal/ipc"
	"github.com/rogersf/ticketflow/internal/knowledge"
	"github.com/rogersf/ticketflow/internal/review"
	"github.com/rogersf/ticketflow/internal/store"
	"github.com/rogersf/ticketflow/internal/telemetry"
	"github.com/rogersf/ticketflow/internal/workflow"
)

// app is the fully wired service: one engine, its store and its sinks.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	journal  *store.RunJournal
	engine   *workflow.Engine
	guard    *guard.Guard
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

// newApp builds every component named in cfg. Logs and trace output go to
// logOut. Callers must call close.
func newApp(cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	logger := telemetry.NewLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, logOut, logger)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	a.db, err = store.NewDB(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.db.Close() })
	a.journal = store.NewRunJournal(a.db)

	collab, err := a.collaborators()
	if err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.engine, err = workflow.NewEngine(collab,
		workflow.WithRetryLimit(cfg.Workflow.RetryLimit),
		workflow.WithJournal(a.journal),
		workflow.WithLogger(logger),
		workflow.WithMetrics(telemetry.NewMetrics(a.registry)),
	)
	if err != nil {
		return nil, err
	}

	a.guard = guard.NewGuard(guard.GuardConfig{
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		MaxSubjectLen:      cfg.Server.MaxSubjectLen,
		MaxDescriptionLen:  cfg.Server.MaxDescriptionLen,
	})
	return a, nil
}

func (a *app) collaborators() (workflow.Collaborators, error) {
	cfg := a.cfg

	classifier, err := classify.NewKeywordClassifier(cfg.Classifier.Rules)
	if err != nil {
		return workflow.Collaborators{}, err
	}

	table := knowledge.DefaultTable()
	if cfg.Knowledge.TablePath != "" {
		if table, err = knowledge.LoadTable(cfg.Knowledge.TablePath); err != nil {
			return workflow.Collaborators{}, err
		}
	}
	notes, err := cfg.Knowledge.CategoryNotes()
	if err != nil {
		return workflow.Collaborators{}, err
	}
	if notes == nil {
		notes = knowledge.DefaultNotes()
	}

	tmpl := cfg.Compose.Template
	if tmpl == "" {
		tmpl = compose.DefaultTemplate
	}
	composer, err := compose.NewTemplateComposer(tmpl, cfg.Compose.Signature)
	if err != nil {
		return workflow.Collaborators{}, err
	}

	reviewer, err := review.NewPolicyReviewer(review.Options{
		ProhibitedTerms: cfg.Review.ProhibitedTerms,
		MinLength:       cfg.Review.MinLength,
	})
	if err != nil {
		return workflow.Collaborators{}, err
	}

	return workflow.Collaborators{
		Classifier: classifier,
		Knowledge:  knowledge.NewStaticProvider(table),
		Refiner:    &knowledge.NoteRefiner{Notes: notes},
		Composer:   composer,
		Reviewer:   reviewer,
		Sink:       a.sinks(),
	}, nil
}

// sinks builds the escalation fan-out in configured order.
func (a *app) sinks() escalation.MultiSink {
	var out escalation.MultiSink
	for _, name := range a.cfg.Escalation.Sinks {
		switch name {
		case config.SinkCSV:
			csvSink := escalation.NewCSVSink(a.cfg.Escalation.CSVPath)
			a.logger.Debug("csv escalation sink", "path", csvSink.Path())
			out = append(out, csvSink)
		case config.SinkSQLite:
			out = append(out, escalation.NewSQLiteSink(a.db))
		case config.SinkKafka:
			k := escalation.NewKafkaSink(a.cfg.Escalation.Kafka.Brokers, a.cfg.Escalation.Kafka.Topic)
			a.closers = append(a.closers, func(context.Context) error { return k.Close() })
			out = append(out, k)
		}
	}
	return out
}

// handler exposes the app over HTTP.
func (a *app) handler() *ipc.Handler {
	h := &ipc.Handler{
		Engine:     a.engine,
		Guard:      a.guard,
		Journal:    a.journal,
		DB:         a.db,
		RunTimeout: a.cfg.Workflow.RunTimeout,
		Logger:     a.logger,
	}
	// Only the sqlite sink writes rows the escalation endpoints can read.
	if a.cfg.HasSink(config.SinkSQLite) {
		h.EscalationRepo = &store.EscalationRepo{}
	}
	return h
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
