package sitecheck

import (
	"encoding/json"
	"time"

	"NewsSmoke/pkg/health"
	"NewsSmoke/pkg/pagination"
	"NewsSmoke/pkg/report"

	"github.com/google/uuid"
)

// Kind names a check type. It doubles as the metrics label.
type Kind string

const (
	KindServer    Kind = "server"
	KindBrowser   Kind = "browser"
	KindDiscovery Kind = "discovery"
	KindMain      Kind = "main"
	KindCategory  Kind = "category"
	KindTag       Kind = "tag"
	KindSearch    Kind = "search"
)

// CheckResult is the outcome of one check. Err is nil on success.
type CheckResult struct {
	Kind       Kind
	Target     string
	Items      int
	Err        error
	Screenshot string
	Duration   time.Duration
}

// OK reports whether the check passed.
func (c CheckResult) OK() bool { return c.Err == nil }

// FailureKind returns the pagination failure kind ("empty_content",
// "navigation", "no_analytics"), "other" for any other error and "" on success.
func (c CheckResult) FailureKind() string {
	if c.Err == nil {
		return ""
	}
	if k := pagination.KindOf(c.Err); k != 0 {
		return k.String()
	}
	return "other"
}

// Label is how the check is named in reports, e.g. "category politics".
func (c CheckResult) Label() string {
	if c.Target == "" || c.Target == string(c.Kind) {
		return string(c.Kind)
	}
	return string(c.Kind) + " " + c.Target
}

// MarshalJSON flattens Err for the /status endpoint.
func (c CheckResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind       Kind    `json:"kind"`
		Target     string  `json:"target,omitempty"`
		OK         bool    `json:"ok"`
		Items      int     `json:"items,omitempty"`
		Failure    string  `json:"failure,omitempty"`
		Error      string  `json:"error,omitempty"`
		Screenshot string  `json:"screenshot,omitempty"`
		Seconds    float64 `json:"duration_seconds"`
	}{
		Kind:       c.Kind,
		Target:     c.Target,
		OK:         c.OK(),
		Items:      c.Items,
		Failure:    c.FailureKind(),
		Screenshot: c.Screenshot,
		Seconds:    c.Duration.Seconds(),
	}
	if c.Err != nil {
		out.Error = c.Err.Error()
	}
	return json.Marshal(out)
}

// RunReport accumulates everything one run observed. Each phase fills its own
// report and the runner merges them; nothing is shared between runs.
type RunReport struct {
	ID         string          `json:"id"`
	Site       string          `json:"site"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished"`
	Checks     []CheckResult   `json:"checks"`
	Categories []string        `json:"categories,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Servers    []health.Result `json:"servers,omitempty"`
}

// NewRunReport starts a report with a fresh run ID.
func NewRunReport(site string, started time.Time) *RunReport {
	return &RunReport{
		ID:      uuid.NewString(),
		Site:    site,
		Started: started,
	}
}

// Add records a check result.
func (r *RunReport) Add(res CheckResult) {
	r.Checks = append(r.Checks, res)
}

// Merge folds other into r, keeping r's ID.
func (r *RunReport) Merge(other *RunReport) {
	if other == nil {
		return
	}
	r.Checks = append(r.Checks, other.Checks...)
	r.Categories = append(r.Categories, other.Categories...)
	r.Tags = append(r.Tags, other.Tags...)
	r.Servers = append(r.Servers, other.Servers...)
	if r.Started.IsZero() || (!other.Started.IsZero() && other.Started.Before(r.Started)) {
		r.Started = other.Started
	}
	if other.Finished.After(r.Finished) {
		r.Finished = other.Finished
	}
}

// Successes counts passed checks.
func (r *RunReport) Successes() int {
	n := 0
	for _, c := range r.Checks {
		if c.OK() {
			n++
		}
	}
	return n
}

// Errors counts failed checks.
func (r *RunReport) Errors() int {
	return len(r.Checks) - r.Successes()
}

// Failed returns the failed checks in run order.
func (r *RunReport) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// Duration is the wall time between start and finish, zero while running.
func (r *RunReport) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Summary converts the report for the final notification.
func (r *RunReport) Summary() report.Summary {
	s := report.Summary{
		Site:      r.Site,
		RunID:     r.ID,
		Successes: r.Successes(),
		Errors:    r.Errors(),
		Duration:  r.Duration(),
	}
	for _, c := range r.Failed() {
		s.Failed = append(s.Failed, c.Label())
	}
	return s
}
