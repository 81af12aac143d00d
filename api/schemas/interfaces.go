package schemas

import "context"

// KeyEventType distinguishes the low-level key event phases. The strings align
// with the CDP Input domain so the browser binding can pass them through.
type KeyEventType string

const (
	KeyDown KeyEventType = "keyDown"
	KeyUp   KeyEventType = "keyUp"
	KeyChar KeyEventType = "char"
)

// KeyEvent holds the data to dispatch a synthetic key event. It is an agnostic
// structure so the core stays independent of the automation backend.
type KeyEvent struct {
	Type KeyEventType
	// Key is the DOM key value, e.g. "Enter".
	Key string
	// Code is the physical key code, e.g. "Enter", "KeyA".
	Code string
	// VirtualKeyCode is the legacy Windows virtual key code (13 for Enter).
	VirtualKeyCode int
	// Text is the generated text, if any.
	Text string
}

// BrowserSession is the capability surface the pipeline components operate
// through. The chromedp binding in internal/browser implements it; tests
// substitute in-memory fakes. No component reaches past this interface.
type BrowserSession interface {
	// SetCookie installs one cookie in the session's cookie store.
	SetCookie(ctx context.Context, cred Credential) error
	// Cookies returns the cookies currently visible to the session.
	Cookies(ctx context.Context) ([]Credential, error)
	// Navigate loads the given URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs a JavaScript expression and unmarshals its value into out.
	Evaluate(ctx context.Context, expr string, out any) error
	// Text returns the rendered text content of the first element matching the
	// CSS selector, or "" when no element matches.
	Text(ctx context.Context, selector string) (string, error)
	// HTML returns the outer HTML of the first element matching the CSS
	// selector, or "" when no element matches.
	HTML(ctx context.Context, selector string) (string, error)
	// SendKeys emits the given text into the element matching the selector.
	SendKeys(ctx context.Context, selector, keys string) error
	// DispatchKeyEvent sends a raw key event through the input layer, bypassing
	// the higher-level typing path.
	DispatchKeyEvent(ctx context.Context, ev KeyEvent) error
	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close tears the session down and releases the browser resources.
	Close(ctx context.Context) error
}

// ResultSink receives the finalized PipelineRun. The pipeline core does not
// own storage; persistence lives behind this interface.
type ResultSink interface {
	SaveRun(ctx context.Context, run *PipelineRun) error
}
