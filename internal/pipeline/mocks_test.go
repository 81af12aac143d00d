package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/kvasirlabs/askpilot/api/schemas"
	"github.com/kvasirlabs/askpilot/internal/extract"
	"github.com/kvasirlabs/askpilot/internal/interact"
)

type mockInjector struct {
	mu          sync.Mutex
	outcome     schemas.InjectionOutcome
	injectErr   error
	verifyErr   error
	injectCalls int
	verifyCalls int
}

func (m *mockInjector) Inject(ctx context.Context, session schemas.BrowserSession, creds []schemas.Credential) (schemas.InjectionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injectCalls++
	return m.outcome, m.injectErr
}

func (m *mockInjector) VerifyAuthenticated(ctx context.Context, session schemas.BrowserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	return m.verifyErr
}

type mockInteractor struct {
	mu          sync.Mutex
	target      *interact.Target
	locateErr   error
	typeErr     error
	submitPath  string
	submitErr   error
	typedText   string
	locateCalls int
	submitCalls int
}

func (m *mockInteractor) LocateInteractable(ctx context.Context, session schemas.BrowserSession, selectors []string, timeout time.Duration) (*interact.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locateCalls++
	return m.target, m.locateErr
}

func (m *mockInteractor) TypeQuery(ctx context.Context, session schemas.BrowserSession, target *interact.Target, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typedText = text
	return m.typeErr
}

func (m *mockInteractor) Submit(ctx context.Context, session schemas.BrowserSession, target *interact.Target) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitCalls++
	return m.submitPath, m.submitErr
}

type mockDetector struct {
	snap  *schemas.Snapshot
	err   error
	calls int
}

func (m *mockDetector) AwaitConvergence(ctx context.Context, session schemas.BrowserSession) (*schemas.Snapshot, error) {
	m.calls++
	return m.snap, m.err
}

type mockExtractor struct {
	result *extract.Result
	err    error
	calls  int
}

func (m *mockExtractor) Run(snap *schemas.Snapshot) (*extract.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockSink struct {
	mu    sync.Mutex
	runs  []*schemas.PipelineRun
	err   error
}

func (m *mockSink) SaveRun(ctx context.Context, run *schemas.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

// stubSession is the minimal session the pipeline itself touches directly:
// navigation and screenshots. Everything else goes through the stage mocks.
type stubSession struct {
	mu          sync.Mutex
	navigated   []string
	navErr      error
	screenshots int
	png         []byte
}

func (s *stubSession) SetCookie(ctx context.Context, cred schemas.Credential) error { return nil }
func (s *stubSession) Cookies(ctx context.Context) ([]schemas.Credential, error)    { return nil, nil }

func (s *stubSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navErr != nil {
		return s.navErr
	}
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *stubSession) Evaluate(ctx context.Context, expr string, out any) error  { return nil }
func (s *stubSession) Text(ctx context.Context, selector string) (string, error) { return "", nil }
func (s *stubSession) HTML(ctx context.Context, selector string) (string, error) { return "", nil }
func (s *stubSession) SendKeys(ctx context.Context, selector, keys string) error { return nil }
func (s *stubSession) DispatchKeyEvent(ctx context.Context, ev schemas.KeyEvent) error {
	return nil
}
func (s *stubSession) Click(ctx context.Context, selector string) error { return nil }

func (s *stubSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots++
	return s.png, nil
}

func (s *stubSession) Close(ctx context.Context) error { return nil }
