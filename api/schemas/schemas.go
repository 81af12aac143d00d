package schemas

import "time"

// SameSite mirrors the browser cookie SameSite attribute strings.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// Credential is one browser cookie loaded from the credential store. It is
// immutable once constructed; the injector consumes it and never mutates it.
type Credential struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Domain    string    `json:"domain"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires,omitempty"`
	Secure    bool      `json:"secure"`
	HTTPOnly  bool      `json:"httpOnly"`
	SameSite  SameSite  `json:"sameSite,omitempty"`
	// Critical marks credentials whose absence makes the session unusable.
	// The classification is supplied by the caller, never inferred.
	Critical bool `json:"-"`
}

// Expired reports whether the credential carries an expiry in the past.
// A zero ExpiresAt means a session cookie, which never expires client-side.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// InjectionOutcome summarizes one injection pass over a credential set.
type InjectionOutcome struct {
	// Injected holds the names of credentials the session accepted.
	Injected []string `json:"injected"`
	// Failed maps credential names to the reason injection failed after retries.
	Failed map[string]string `json:"failed,omitempty"`
	// CriticalSatisfied is true when every critical credential was injected.
	CriticalSatisfied bool `json:"critical_satisfied"`
}

// StabilitySample is one observation in the convergence poll loop.
type StabilitySample struct {
	Hash       uint64    `json:"hash"`
	Length     int       `json:"length"`
	CapturedAt time.Time `json:"captured_at"`
}

// Snapshot is the terminal output of the stability detector: the response
// region's content at the moment convergence was confirmed, or the best-effort
// last read when the wait budget ran out.
type Snapshot struct {
	Text   string `json:"text"`
	HTML   string `json:"-"`
	Length int    `json:"length"`
	// Partial is set when MaxWait elapsed before the required number of
	// consecutive stable reads. The content may still be usable downstream.
	Partial bool          `json:"partial"`
	Waited  time.Duration `json:"waited"`
	Samples int           `json:"samples"`
}

// Source is a citation link pulled from the converged answer region.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ExtractionAttempt is the result of running one extraction strategy. The
// pipeline retains only the first successful attempt; failed attempts are kept
// for diagnostics.
type ExtractionAttempt struct {
	Strategy string   `json:"strategy"`
	Success  bool     `json:"success"`
	Text     string   `json:"text,omitempty"`
	Sources  []Source `json:"sources,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// RunStatus is the single terminal status of a pipeline run.
type RunStatus string

const (
	// RunSuccess means the answer was extracted from confirmed-stable content.
	RunSuccess RunStatus = "success"
	// RunPartial means content was extracted despite unconfirmed convergence.
	RunPartial RunStatus = "partial"
	// RunFailed means a stage failed with a typed error.
	RunFailed RunStatus = "failed"
)

// Stage names identify where in the pipeline a run terminated.
const (
	StageInjection    = "injection"
	StageNavigation   = "navigation"
	StageVerification = "verification"
	StageInteraction  = "interaction"
	StageConvergence  = "convergence"
	StageExtraction   = "extraction"
)

// PipelineRun is the top-level aggregate for one query. It is created at
// pipeline start, finalized exactly once, and handed to the result sink.
type PipelineRun struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status RunStatus `json:"status"`
	// Stage records the failing stage for failed runs, or the last completed
	// stage otherwise.
	Stage string `json:"stage,omitempty"`

	Injection InjectionOutcome `json:"injection"`
	Snapshot  Snapshot         `json:"snapshot"`

	AnswerText   string   `json:"answer_text,omitempty"`
	StrategyUsed string   `json:"strategy_used,omitempty"`
	Sources      []Source `json:"sources,omitempty"`
	// Attempts holds every extraction attempt, at most one of them successful.
	Attempts []ExtractionAttempt `json:"attempts,omitempty"`

	Timings map[string]time.Duration `json:"timings,omitempty"`
	Error   string                   `json:"error,omitempty"`
}
