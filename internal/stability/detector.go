// Package stability decides when a streamed response has finished rendering.
// The page offers no completion event, so convergence is inferred from the
// content itself: when consecutive reads of the response region hash to the
// same value enough times in a row, the stream is considered settled.
package stability

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
)

// phase tracks where the detector is in its observation of the stream.
type phase int

const (
	// phaseWaiting means no substantive content has appeared yet. Reads below
	// the minimum length stay here; placeholder chrome must not converge.
	phaseWaiting phase = iota
	// phaseAccumulating means content is present and the detector is counting
	// consecutive identical reads.
	phaseAccumulating
)

// Detector polls a response region until its content stops changing.
type Detector struct {
	cfg    config.StabilityConfig
	logger *zap.Logger

	// now and sleep are swapped out in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDetector creates a Detector with the supplied tunables.
func NewDetector(cfg config.StabilityConfig, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.Named("stability"),
		now:    time.Now,
		sleep:  contextSleep,
	}
}

// AwaitConvergence polls the configured region until RequiredStableReads
// consecutive samples hash identically, then returns the settled content.
//
// Exhausting MaxWait is not an error: the last read is returned with Partial
// set, and the caller decides whether best-effort content is acceptable. Only
// context cancellation and persistent read failures abort the wait.
func (d *Detector) AwaitConvergence(ctx context.Context, session schemas.BrowserSession) (*schemas.Snapshot, error) {
	started := d.now()
	deadline := started.Add(d.cfg.MaxWait)

	var (
		state    = phaseWaiting
		window   []schemas.StabilitySample
		lastText string
		samples  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := session.Text(ctx, d.cfg.RegionSelector)
		if err != nil {
			return nil, fmt.Errorf("failed to read response region %q: %w", d.cfg.RegionSelector, err)
		}
		samples++

		switch {
		case len(text) < d.cfg.MinContentLength:
			// Still a placeholder or an empty shell. A shrink back below the
			// threshold also resets the window; re-renders restart the wait.
			state = phaseWaiting
			window = window[:0]
		default:
			sample := schemas.StabilitySample{
				Hash:       hashContent(text),
				Length:     len(text),
				CapturedAt: d.now(),
			}
			if len(window) > 0 && window[len(window)-1].Hash != sample.Hash {
				window = window[:0]
			}
			window = append(window, sample)
			state = phaseAccumulating
			lastText = text
		}

		if state == phaseAccumulating && len(window) >= d.cfg.RequiredStableReads {
			waited := d.now().Sub(started)
			d.logger.Info("Content converged",
				zap.Int("length", len(lastText)),
				zap.Int("samples", samples),
				zap.Duration("waited", waited))
			return d.snapshot(ctx, session, lastText, false, waited, samples), nil
		}

		if !d.now().Add(d.cfg.PollInterval).Before(deadline) {
			waited := d.now().Sub(started)
			d.logger.Warn("Convergence wait budget exhausted, returning partial content",
				zap.Int("length", len(lastText)),
				zap.Int("stable_reads", len(window)),
				zap.Int("required", d.cfg.RequiredStableReads),
				zap.Duration("waited", waited))
			return d.snapshot(ctx, session, lastText, true, waited, samples), nil
		}

		if err := d.sleep(ctx, d.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// snapshot finalizes the result, fetching the region's HTML once so the
// extraction cascade can run structural strategies without re-polling.
func (d *Detector) snapshot(ctx context.Context, session schemas.BrowserSession, text string, partial bool, waited time.Duration, samples int) *schemas.Snapshot {
	html, err := session.HTML(ctx, d.cfg.RegionSelector)
	if err != nil {
		// Text-based strategies still work without the HTML view.
		d.logger.Warn("Failed to capture region HTML", zap.Error(err))
		html = ""
	}
	return &schemas.Snapshot{
		Text:    text,
		HTML:    html,
		Length:  len(text),
		Partial: partial,
		Waited:  waited,
		Samples: samples,
	}
}

// hashContent fingerprints a read. FNV-64a is cheap and collision-safe enough
// for equality comparison of successive reads of the same region.
func hashContent(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
