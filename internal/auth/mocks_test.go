package auth

import (
	"context"
	"sync"

	jsonstd "encoding/json"

	"github.com/kvasirlabs/askpilot/api/schemas"
)

// mockSession is an in-memory BrowserSession for injector tests.
type mockSession struct {
	mu sync.Mutex

	// setCookieErrs maps credential names to the error sequence returned by
	// successive SetCookie calls; once exhausted SetCookie succeeds.
	setCookieErrs map[string][]error
	setCalls      map[string]int
	stored        []schemas.Credential

	// dropFromStore lists names the store silently discards even when
	// SetCookie reports success.
	dropFromStore map[string]bool
	cookiesErr    error

	// evalResults maps evaluated expressions to raw JSON results.
	evalResults map[string]string
	evalCalls   int
	bodyText    string
}

func newMockSession() *mockSession {
	return &mockSession{
		setCookieErrs: make(map[string][]error),
		setCalls:      make(map[string]int),
		dropFromStore: make(map[string]bool),
		evalResults:   make(map[string]string),
	}
}

func (m *mockSession) SetCookie(_ context.Context, cred schemas.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls[cred.Name]++
	if errs := m.setCookieErrs[cred.Name]; len(errs) > 0 {
		err := errs[0]
		m.setCookieErrs[cred.Name] = errs[1:]
		if err != nil {
			return err
		}
	}
	if !m.dropFromStore[cred.Name] {
		m.stored = append(m.stored, cred)
	}
	return nil
}

func (m *mockSession) Cookies(context.Context) ([]schemas.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cookiesErr != nil {
		return nil, m.cookiesErr
	}
	out := make([]schemas.Credential, len(m.stored))
	copy(out, m.stored)
	return out, nil
}

func (m *mockSession) Navigate(context.Context, string) error { return nil }

func (m *mockSession) Evaluate(_ context.Context, expr string, out any) error {
	m.mu.Lock()
	m.evalCalls++
	raw, ok := m.evalResults[expr]
	m.mu.Unlock()
	if !ok {
		raw = "false"
	}
	return jsonstd.Unmarshal([]byte(raw), out)
}

func (m *mockSession) Text(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bodyText, nil
}

func (m *mockSession) HTML(context.Context, string) (string, error)  { return "", nil }
func (m *mockSession) SendKeys(context.Context, string, string) error { return nil }
func (m *mockSession) DispatchKeyEvent(context.Context, schemas.KeyEvent) error {
	return nil
}
func (m *mockSession) Click(context.Context, string) error      { return nil }
func (m *mockSession) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (m *mockSession) Close(context.Context) error              { return nil }
