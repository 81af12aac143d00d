// Package auth installs session credentials into the browser before
// navigation and verifies the site actually recognizes the session afterward.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/config"
	"github.com/kvasirlabs/askpilot/internal/retry"
)

// ErrCredentialMalformed marks credentials that can never inject successfully.
// It is classified non-retryable.
var ErrCredentialMalformed = errors.New("credential is missing a name or value")

// AuthenticationError is fatal: one or more critical credentials could not be
// injected, so the session would load unauthenticated.
type AuthenticationError struct {
	MissingCritical []string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("critical credentials failed to inject: %s", strings.Join(e.MissingCritical, ", "))
}

// VerificationError is fatal: the cookies were accepted but the page shows no
// authenticated-state signal, so the site treats the session as logged out.
type VerificationError struct {
	Selector string
	Marker   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("session not recognized as authenticated (selector=%q marker=%q)", e.Selector, e.Marker)
}

// Injector installs credentials through the session's cookie capability.
type Injector struct {
	cfg    config.AuthConfig
	logger *zap.Logger
}

// NewInjector creates an Injector with the supplied tunables.
func NewInjector(cfg config.AuthConfig, logger *zap.Logger) *Injector {
	return &Injector{cfg: cfg, logger: logger.Named("auth")}
}

// Inject installs every credential, retrying transient failures per
// credential. It must run before the target page is navigated; injecting after
// navigation races the page's first authenticated render.
//
// Non-critical failures are recorded in the outcome and do not abort. If any
// critical credential fails after retries, Inject returns the outcome together
// with an *AuthenticationError and the pipeline must not proceed.
func (i *Injector) Inject(ctx context.Context, session schemas.BrowserSession, creds []schemas.Credential) (schemas.InjectionOutcome, error) {
	outcome := schemas.InjectionOutcome{
		Failed:            make(map[string]string),
		CriticalSatisfied: true,
	}

	policy := retry.Policy{
		MaxAttempts: i.cfg.InjectAttempts,
		BaseDelay:   i.cfg.InjectBackoff,
		IsRetryable: func(err error) bool { return !errors.Is(err, ErrCredentialMalformed) },
	}

	var missingCritical []string
	for _, cred := range creds {
		cred := cred
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			if cred.Name == "" || cred.Value == "" {
				return ErrCredentialMalformed
			}
			return session.SetCookie(ctx, cred)
		})
		if err != nil {
			i.logger.Warn("Credential injection failed",
				zap.String("name", cred.Name),
				zap.Bool("critical", cred.Critical),
				zap.Error(err))
			outcome.Failed[cred.Name] = err.Error()
			if cred.Critical {
				missingCritical = append(missingCritical, cred.Name)
			}
			continue
		}
		outcome.Injected = append(outcome.Injected, cred.Name)
	}

	// Confirm the critical ones actually landed in the cookie store; a
	// driver-level success does not guarantee the browser kept the cookie
	// (domain mismatches are silently dropped).
	if landed, err := i.readBack(ctx, session); err == nil {
		for _, cred := range creds {
			if !cred.Critical || contains(missingCritical, cred.Name) {
				continue
			}
			if !landed[cred.Name] {
				i.logger.Warn("Critical credential accepted but absent from cookie store",
					zap.String("name", cred.Name))
				outcome.Failed[cred.Name] = "not present after injection"
				outcome.Injected = remove(outcome.Injected, cred.Name)
				missingCritical = append(missingCritical, cred.Name)
			}
		}
	} else {
		i.logger.Debug("Cookie read-back unavailable; trusting injection results", zap.Error(err))
	}

	if len(missingCritical) > 0 {
		outcome.CriticalSatisfied = false
		return outcome, &AuthenticationError{MissingCritical: missingCritical}
	}

	i.logger.Info("Credential injection complete",
		zap.Int("injected", len(outcome.Injected)),
		zap.Int("failed", len(outcome.Failed)))
	return outcome, nil
}

// VerifyAuthenticated checks, after navigation, for a DOM signal that the site
// recognizes the session. It distinguishes "cookies accepted" from "actually
// logged in". With neither a selector nor a marker configured it is a no-op.
func (i *Injector) VerifyAuthenticated(ctx context.Context, session schemas.BrowserSession) error {
	if i.cfg.VerifySelector == "" && i.cfg.VerifyMarker == "" {
		i.logger.Debug("No authentication verification configured; skipping")
		return nil
	}

	interval := i.cfg.VerifyPollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	deadline := time.Now().Add(i.cfg.VerifyTimeout)
	for {
		if ok, err := i.probe(ctx, session); err != nil {
			return err
		} else if ok {
			i.logger.Info("Authenticated session verified")
			return nil
		}
		if time.Now().After(deadline) {
			return &VerificationError{Selector: i.cfg.VerifySelector, Marker: i.cfg.VerifyMarker}
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (i *Injector) probe(ctx context.Context, session schemas.BrowserSession) (bool, error) {
	if i.cfg.VerifySelector != "" {
		var present bool
		expr := fmt.Sprintf(`!!document.querySelector(%q)`, i.cfg.VerifySelector)
		if err := session.Evaluate(ctx, expr, &present); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
		} else if present {
			return true, nil
		}
	}
	if i.cfg.VerifyMarker != "" {
		body, err := session.Text(ctx, "body")
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		if strings.Contains(body, i.cfg.VerifyMarker) {
			return true, nil
		}
	}
	return false, nil
}

func (i *Injector) readBack(ctx context.Context, session schemas.BrowserSession) (map[string]bool, error) {
	cookies, err := session.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	landed := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		landed[c.Name] = true
	}
	return landed, nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
