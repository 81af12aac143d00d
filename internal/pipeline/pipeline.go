// Package pipeline sequences one query end to end: credential injection,
// navigation, session verification, human-paced interaction, convergence, and
// extraction. Stage order is fixed; each stage runs only after the previous
// one succeeded, and the first typed failure terminates the run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
	"github.com/kvasirlabs/askpilot/internal/extract"
	"github.com/kvasirlabs/askpilot/internal/interact"
)

// The pipeline depends on component behavior, not concrete types, so each
// stage can be substituted in tests.

type credentialInjector interface {
	Inject(ctx context.Context, session schemas.BrowserSession, creds []schemas.Credential) (schemas.InjectionOutcome, error)
	VerifyAuthenticated(ctx context.Context, session schemas.BrowserSession) error
}

type interactor interface {
	LocateInteractable(ctx context.Context, session schemas.BrowserSession, selectors []string, timeout time.Duration) (*interact.Target, error)
	TypeQuery(ctx context.Context, session schemas.BrowserSession, target *interact.Target, text string) error
	Submit(ctx context.Context, session schemas.BrowserSession, target *interact.Target) (string, error)
}

type convergenceDetector interface {
	AwaitConvergence(ctx context.Context, session schemas.BrowserSession) (*schemas.Snapshot, error)
}

type answerExtractor interface {
	Run(snap *schemas.Snapshot) (*extract.Result, error)
}

// Pipeline owns the stage sequence for a single query.
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger

	injector  credentialInjector
	interact  interactor
	detector  convergenceDetector
	extractor answerExtractor
	sink      schemas.ResultSink

	now func() time.Time
}

// New wires a Pipeline from its collaborators. sink may be nil when
// persistence is disabled.
func New(cfg *config.Config, logger *zap.Logger, injector credentialInjector, ia interactor, detector convergenceDetector, extractor answerExtractor, sink schemas.ResultSink) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logger.Named("pipeline"),
		injector:  injector,
		interact:  ia,
		detector:  detector,
		extractor: extractor,
		sink:      sink,
		now:       time.Now,
	}
}

// Execute runs the full sequence for one query against an open session and
// returns the finalized run record. The record is returned even on failure;
// the error identifies the failing stage.
func (p *Pipeline) Execute(ctx context.Context, session schemas.BrowserSession, query string, creds []schemas.Credential) (*schemas.PipelineRun, error) {
	run := &schemas.PipelineRun{
		ID:        uuid.NewString(),
		Query:     query,
		StartedAt: p.now(),
		Timings:   map[string]time.Duration{},
	}
	log := p.logger.With(zap.String("run_id", run.ID))
	log.Info("Pipeline started", zap.String("query", query))

	// Cookies must be in place before the first request goes out; injecting
	// after navigation would hand the site an anonymous first impression.
	if err := p.timed(run, schemas.StageInjection, func() error {
		outcome, err := p.injector.Inject(ctx, session, creds)
		run.Injection = outcome
		return err
	}); err != nil {
		return p.fail(ctx, session, run, schemas.StageInjection, err)
	}

	if err := p.timed(run, schemas.StageNavigation, func() error {
		return session.Navigate(ctx, p.cfg.Target.URL)
	}); err != nil {
		return p.fail(ctx, session, run, schemas.StageNavigation, err)
	}

	if err := p.timed(run, schemas.StageVerification, func() error {
		return p.injector.VerifyAuthenticated(ctx, session)
	}); err != nil {
		return p.fail(ctx, session, run, schemas.StageVerification, err)
	}

	if err := p.timed(run, schemas.StageInteraction, func() error {
		target, err := p.interact.LocateInteractable(ctx, session,
			p.cfg.Interaction.InputSelectors, p.cfg.Interaction.LocateTimeout)
		if err != nil {
			return err
		}
		if err := p.interact.TypeQuery(ctx, session, target, query); err != nil {
			return err
		}
		path, err := p.interact.Submit(ctx, session, target)
		if err != nil {
			return err
		}
		log.Debug("Query submitted", zap.String("path", path))
		return nil
	}); err != nil {
		return p.fail(ctx, session, run, schemas.StageInteraction, err)
	}

	var snap *schemas.Snapshot
	if err := p.timed(run, schemas.StageConvergence, func() error {
		var convErr error
		snap, convErr = p.detector.AwaitConvergence(ctx, session)
		return convErr
	}); err != nil {
		return p.fail(ctx, session, run, schemas.StageConvergence, err)
	}
	run.Snapshot = *snap

	var result *extract.Result
	extractErr := p.timed(run, schemas.StageExtraction, func() error {
		var err error
		result, err = p.extractor.Run(snap)
		return err
	})
	if result != nil {
		run.Attempts = result.Attempts
		run.Sources = result.Sources
	}
	if extractErr != nil {
		return p.fail(ctx, session, run, schemas.StageExtraction, extractErr)
	}
	run.AnswerText = result.Text
	run.StrategyUsed = result.Strategy

	// A timed-out wait downgrades the run: the answer came from content that
	// was never confirmed stable.
	run.Stage = schemas.StageExtraction
	if snap.Partial {
		run.Status = schemas.RunPartial
	} else {
		run.Status = schemas.RunSuccess
	}
	run.FinishedAt = p.now()

	if p.cfg.Browser.ScreenshotOnSuccess {
		p.screenshot(ctx, session, run)
	}
	p.persist(ctx, run)
	log.Info("Pipeline finished",
		zap.String("status", string(run.Status)),
		zap.String("strategy", run.StrategyUsed),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))
	return run, nil
}

// timed runs fn and records its wall time under the stage name.
func (p *Pipeline) timed(run *schemas.PipelineRun, stage string, fn func() error) error {
	started := p.now()
	err := fn()
	run.Timings[stage] = p.now().Sub(started)
	return err
}

func (p *Pipeline) fail(ctx context.Context, session schemas.BrowserSession, run *schemas.PipelineRun, stage string, err error) (*schemas.PipelineRun, error) {
	run.Status = schemas.RunFailed
	run.Stage = stage
	run.Error = err.Error()
	run.FinishedAt = p.now()

	p.logger.Error("Pipeline stage failed",
		zap.String("run_id", run.ID),
		zap.String("stage", stage),
		zap.Error(err))

	if p.cfg.Browser.ScreenshotOnFailure {
		p.screenshot(ctx, session, run)
	}
	p.persist(ctx, run)
	return run, fmt.Errorf("stage %s: %w", stage, err)
}

// screenshot captures the viewport for post-mortem inspection. Failures here
// are logged and swallowed; diagnostics never alter the run outcome.
func (p *Pipeline) screenshot(ctx context.Context, session schemas.BrowserSession, run *schemas.PipelineRun) {
	dir := p.cfg.Browser.ScreenshotDir
	if dir == "" {
		return
	}
	png, err := session.Screenshot(ctx)
	if err != nil {
		p.logger.Warn("Screenshot capture failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("Screenshot directory unavailable", zap.Error(err))
		return
	}
	path := filepath.Join(dir, run.ID+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		p.logger.Warn("Screenshot write failed", zap.Error(err))
		return
	}
	p.logger.Info("Screenshot saved", zap.String("path", path))
}

func (p *Pipeline) persist(ctx context.Context, run *schemas.PipelineRun) {
	if p.sink == nil {
		return
	}
	if err := p.sink.SaveRun(ctx, run); err != nil {
		p.logger.Warn("Failed to persist run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
