package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tobi-adeyemi/invoice-pipeline/internal/document"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

// ResultSink receives a completed outcome for persistence. The pipeline does
// not know or care how it is stored.
type ResultSink interface {
	SaveOutcome(ctx context.Context, outcome *entity.Outcome) error
}

// Service is the invocation entry point: it loads the document bytes, drives
// the engine to a terminal state and hands the outcome to the sink. Both the
// upload flow and the reprocess flow go through the same path.
type Service struct {
	store  document.Store
	engine *Engine
	sink   ResultSink
	logger *slog.Logger
}

func NewService(store document.Store, engine *Engine, sink ResultSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, sink: sink, logger: logger}
}

// Run processes one document end to end and persists the outcome.
func (s *Service) Run(ctx context.Context, ref entity.DocumentRef) (*entity.Outcome, error) {
	return s.run(ctx, ref)
}

// Reprocess re-runs the pipeline against a previously stored document. The
// engine path is identical to Run: a reprocess starts a fresh attempt 0 and
// can only diverge from the original outcome through adapter non-determinism,
// never through engine branching. prior is logged for audit continuity only.
func (s *Service) Reprocess(ctx context.Context, ref entity.DocumentRef, prior *entity.Outcome) (*entity.Outcome, error) {
	if prior != nil {
		s.logger.Info("pipeline.reprocess",
			"document_id", ref.ID,
			"prior_outcome_id", prior.ID,
			"prior_kind", prior.Kind,
			"prior_attempts", len(prior.Attempts),
		)
	}
	return s.run(ctx, ref)
}

func (s *Service) run(ctx context.Context, ref entity.DocumentRef) (*entity.Outcome, error) {
	start := time.Now()

	content, err := s.store.LoadBytes(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	outcome, err := s.engine.Run(ctx, ref, content)
	if err != nil {
		return nil, err
	}

	if s.sink != nil {
		if err := s.sink.SaveOutcome(ctx, outcome); err != nil {
			return nil, fmt.Errorf("persist outcome: %w", err)
		}
	}

	s.logger.Info("pipeline.run.done",
		"document_id", ref.ID,
		"outcome_id", outcome.ID,
		"kind", outcome.Kind,
		"attempts", len(outcome.Attempts),
		"anomalies", len(outcome.AnomalyReasons),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return outcome, nil
}
