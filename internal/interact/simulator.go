// Package interact locates live UI targets and drives them with human-paced
// input. Bulk writes are a primary automation-detection signal on the target
// site, so all text entry is emitted unit-by-unit with variable latency.
package interact

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
)

// Target is a located, live-checked handle to a UI element. The capability set
// is computed at locate time and not cached across polls; interactability can
// change between checks.
type Target struct {
	Selector  string
	Clickable bool
	Typable   bool
	Focusable bool
}

// NoTargetError reports that no selector yielded an interactable element
// within the timeout.
type NoTargetError struct {
	Selectors []string
	Timeout   time.Duration
}

func (e *NoTargetError) Error() string {
	return fmt.Sprintf("no interactable target among %v within %s", e.Selectors, e.Timeout)
}

// SubmissionError reports that every submission path failed.
type SubmissionError struct {
	// Paths maps each attempted path name to its failure.
	Paths map[string]string
}

func (e *SubmissionError) Error() string {
	parts := make([]string, 0, len(e.Paths))
	for path, reason := range e.Paths {
		parts = append(parts, path+": "+reason)
	}
	return "all submission paths failed (" + strings.Join(parts, "; ") + ")"
}

// Submission path names, in fallback order.
const (
	SubmitPathNewline  = "newline"
	SubmitPathKeyEvent = "keyevent"
	SubmitPathClick    = "click"
)

// defaultPredicate is the interactability check evaluated per candidate. The
// exact notion of "covered" and "disabled" is site-specific, so the script is
// replaceable through configuration.
const defaultPredicate = `(() => {
	const el = document.querySelector(%q);
	if (!el) return {found: false};
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const visible = rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden';
	const disabled = el.disabled === true ||
		el.getAttribute('aria-disabled') === 'true';
	let covered = false;
	if (visible) {
		const hit = document.elementFromPoint(
			rect.left + rect.width / 2, rect.top + rect.height / 2);
		covered = hit !== null && hit !== el && !el.contains(hit) && !hit.contains(el);
	}
	const tag = el.tagName;
	const typable = tag === 'TEXTAREA' || tag === 'INPUT' || el.isContentEditable === true;
	return {
		found: true,
		visible: visible,
		interactable: visible && !disabled && !covered,
		clickable: visible && !disabled,
		typable: typable,
		focusable: typeof el.focus === 'function',
	};
})()`

// capabilities mirrors the predicate's return value.
type capabilities struct {
	Found        bool `json:"found"`
	Visible      bool `json:"visible"`
	Interactable bool `json:"interactable"`
	Clickable    bool `json:"clickable"`
	Typable      bool `json:"typable"`
	Focusable    bool `json:"focusable"`
}

// Simulator drives the page through the session capability.
type Simulator struct {
	cfg    config.InteractionConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swapped out in tests to observe pacing without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSimulator creates a Simulator with the supplied tunables.
func NewSimulator(cfg config.InteractionConfig, logger *zap.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg,
		logger: logger.Named("interact"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  contextSleep,
	}
}

// LocateInteractable tries selectors in priority order until one yields an
// element that is both visible and interactable. Mere DOM presence is not
// sufficient: hidden, zero-size, disabled, and covered elements are rejected.
func (s *Simulator) LocateInteractable(ctx context.Context, session schemas.BrowserSession, selectors []string, timeout time.Duration) (*Target, error) {
	predicate := s.cfg.PredicateScript
	if predicate == "" {
		predicate = defaultPredicate
	}

	deadline := time.Now().Add(timeout)
	for {
		for _, selector := range selectors {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var caps capabilities
			expr := fmt.Sprintf(predicate, selector)
			if err := session.Evaluate(ctx, expr, &caps); err != nil {
				s.logger.Debug("Interactability probe failed",
					zap.String("selector", selector), zap.Error(err))
				continue
			}
			if !caps.Found || !caps.Visible || !caps.Interactable {
				continue
			}

			s.logger.Debug("Located interactable target", zap.String("selector", selector))
			return &Target{
				Selector:  selector,
				Clickable: caps.Clickable,
				Typable:   caps.Typable,
				Focusable: caps.Focusable,
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, &NoTargetError{Selectors: selectors, Timeout: timeout}
		}
		if err := s.sleep(ctx, s.cfg.LocatePollInterval); err != nil {
			return nil, err
		}
	}
}

// TypeQuery emits text into the target one character at a time, each preceded
// by a randomized delay from the configured range. Whitespace gets a longer
// pause, matching the natural inter-word rhythm of human typing. Replacing
// this with a single bulk write defeats its purpose.
func (s *Simulator) TypeQuery(ctx context.Context, session schemas.BrowserSession, target *Target, text string) error {
	if !target.Typable {
		return fmt.Errorf("target %q does not accept text input", target.Selector)
	}

	// Focus the input first; keys land on the focused element.
	if err := session.Click(ctx, target.Selector); err != nil {
		return fmt.Errorf("failed to focus %q: %w", target.Selector, err)
	}

	for _, r := range text {
		if err := s.sleep(ctx, s.unitDelay(r)); err != nil {
			return err
		}
		if err := session.SendKeys(ctx, target.Selector, string(r)); err != nil {
			return fmt.Errorf("failed to send %q: %w", r, err)
		}
	}
	s.logger.Debug("Query typed", zap.Int("units", len([]rune(text))))
	return nil
}

// Submit fires the query through an ordered fallback chain and returns the
// name of the path that succeeded.
//
// Path 1 must emit a literal carriage-return control character, not the text
// label of the key; sending the word "Enter" as text is a classic failure.
func (s *Simulator) Submit(ctx context.Context, session schemas.BrowserSession, target *Target) (string, error) {
	failures := make(map[string]string)

	// 1. Line terminator into the focused target.
	if err := session.SendKeys(ctx, target.Selector, "\r"); err == nil {
		s.logger.Info("Query submitted", zap.String("path", SubmitPathNewline))
		return SubmitPathNewline, nil
	} else {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("Newline submission failed", zap.Error(err))
		failures[SubmitPathNewline] = err.Error()
	}

	// 2. Raw key event pair through the input dispatch capability.
	if err := s.dispatchEnter(ctx, session); err == nil {
		s.logger.Info("Query submitted", zap.String("path", SubmitPathKeyEvent))
		return SubmitPathKeyEvent, nil
	} else {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("Key-event submission failed", zap.Error(err))
		failures[SubmitPathKeyEvent] = err.Error()
	}

	// 3. Dedicated submit control.
	if err := s.clickSubmit(ctx, session); err == nil {
		s.logger.Info("Query submitted", zap.String("path", SubmitPathClick))
		return SubmitPathClick, nil
	} else {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Debug("Click submission failed", zap.Error(err))
		failures[SubmitPathClick] = err.Error()
	}

	return "", &SubmissionError{Paths: failures}
}

func (s *Simulator) dispatchEnter(ctx context.Context, session schemas.BrowserSession) error {
	down := schemas.KeyEvent{
		Type:           schemas.KeyDown,
		Key:            "Enter",
		Code:           "Enter",
		VirtualKeyCode: 13,
		Text:           "\r",
	}
	if err := session.DispatchKeyEvent(ctx, down); err != nil {
		return err
	}
	up := down
	up.Type = schemas.KeyUp
	up.Text = ""
	return session.DispatchKeyEvent(ctx, up)
}

func (s *Simulator) clickSubmit(ctx context.Context, session schemas.BrowserSession) error {
	if len(s.cfg.SubmitSelectors) == 0 {
		return fmt.Errorf("no submit selectors configured")
	}
	button, err := s.LocateInteractable(ctx, session, s.cfg.SubmitSelectors, s.cfg.LocatePollInterval*4)
	if err != nil {
		return err
	}
	return session.Click(ctx, button.Selector)
}

// unitDelay draws a per-character delay from the configured range, stretched
// for whitespace.
func (s *Simulator) unitDelay(r rune) time.Duration {
	s.mu.Lock()
	f := s.rng.Float64()
	s.mu.Unlock()

	span := s.cfg.TypeDelayMax - s.cfg.TypeDelayMin
	d := s.cfg.TypeDelayMin + time.Duration(f*float64(span))
	if unicode.IsSpace(r) {
		d = time.Duration(float64(d) * s.cfg.WhitespaceFactor)
	}
	return d
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
