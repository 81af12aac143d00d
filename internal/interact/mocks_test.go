package interact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kvasirlabs/askpilot/api/schemas"
)

// mockSession implements schemas.BrowserSession for simulator tests. Probe
// results are keyed by selector substring so tests do not need to reproduce
// the full predicate expression.
type mockSession struct {
	mu sync.Mutex

	// probeResults maps a selector to the JSON the predicate evaluates to.
	probeResults map[string]string
	probeCalls   []string

	sentKeys     []string
	sendKeysErr  error
	sendKeysErrs map[string]error // keyed by the keys argument

	dispatched   []schemas.KeyEvent
	dispatchErr  error
	clicked      []string
	clickErr     error
	clickErrs    map[string]error
	screenshots  int
	screenshotPayload []byte
}

func newMockSession() *mockSession {
	return &mockSession{probeResults: map[string]string{}}
}

func (m *mockSession) SetCookie(ctx context.Context, cred schemas.Credential) error { return nil }

func (m *mockSession) Cookies(ctx context.Context) ([]schemas.Credential, error) { return nil, nil }

func (m *mockSession) Navigate(ctx context.Context, url string) error { return nil }

func (m *mockSession) Evaluate(ctx context.Context, expr string, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for selector, raw := range m.probeResults {
		if strings.Contains(expr, selector) {
			m.probeCalls = append(m.probeCalls, selector)
			return json.Unmarshal([]byte(raw), out)
		}
	}
	return fmt.Errorf("no probe result for expression %q", expr)
}

func (m *mockSession) Text(ctx context.Context, selector string) (string, error) { return "", nil }

func (m *mockSession) HTML(ctx context.Context, selector string) (string, error) { return "", nil }

func (m *mockSession) SendKeys(ctx context.Context, selector, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.sendKeysErrs[keys]; ok && err != nil {
		return err
	}
	if m.sendKeysErr != nil {
		return m.sendKeysErr
	}
	m.sentKeys = append(m.sentKeys, keys)
	return nil
}

func (m *mockSession) DispatchKeyEvent(ctx context.Context, ev schemas.KeyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatchErr != nil {
		return m.dispatchErr
	}
	m.dispatched = append(m.dispatched, ev)
	return nil
}

func (m *mockSession) Click(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.clickErrs[selector]; ok && err != nil {
		return err
	}
	if m.clickErr != nil {
		return m.clickErr
	}
	m.clicked = append(m.clicked, selector)
	return nil
}

func (m *mockSession) Screenshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenshots++
	return m.screenshotPayload, nil
}

func (m *mockSession) Close(ctx context.Context) error { return nil }

// sleepRecorder replaces the simulator's pacing sleep and records each
// requested delay without actually waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}
