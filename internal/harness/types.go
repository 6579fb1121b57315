package harness

// Trace operations.
const (
	OpBind      = "bind"
	OpCommit    = "commit"
	OpWait      = "wait"
	OpWaitAll   = "wait_all"
	OpDestroy   = "destroy"
	OpPresented = "presented"
	OpDiscarded = "discarded"
	OpError     = "error"
)

// TraceEvent is one client action or one observed state change.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Step     int    `json:"step"` // 0 for bind, then 1-based step index
	Op       string `json:"op"`
	Surface  string `json:"surface,omitempty"`
	Feedback string `json:"feedback,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Outcome is the final observed state of one feedback request.
// Presentation fields are zero unless Result is "presented".
type Outcome struct {
	Name             string `json:"name"`
	Surface          string `json:"surface"`
	Ordinal          int64  `json:"ordinal"`
	Result           string `json:"result"`
	Line             string `json:"line"`
	Flags            string `json:"flags,omitempty"`
	Seq              uint64 `json:"seq,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
	RefreshNsec      uint32 `json:"refresh_nsec,omitempty"`
	SyncOutput       string `json:"sync_output,omitempty"`
	SyncOutputEvents int    `json:"sync_output_events"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation matched and the run ended with the
	// expected error, if any.
	Pass bool `json:"pass"`

	// SessionID identifies the run in the store.
	SessionID string `json:"session_id"`

	Trace    []TraceEvent `json:"trace"`
	Feedback []Outcome    `json:"feedback"`

	// ErrorCode is the lower-case violation code the run ended with.
	ErrorCode string `json:"error_code,omitempty"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// TraceDigest is the content digest of the run's snapshot.
	TraceDigest string `json:"trace_digest"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Feedback: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome of the named feedback.
func (r *Result) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Feedback {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}
