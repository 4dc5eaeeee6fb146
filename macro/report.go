package macro

import "time"

// Step statuses.
const (
	StepOK      = "ok"
	StepSkipped = "skipped"
	StepError   = "error"
)

// Step resolutions.
const (
	BySelector    = "selector"
	ByCoordinates = "coordinates"
	ByNetwork     = "network"
)

// StepResult is the outcome of one replayed event.
type StepResult struct {
	Index      int           `json:"index"`
	Type       string        `json:"type"`
	Selector   string        `json:"selector,omitempty"`
	Status     string        `json:"status"`
	Resolution string        `json:"resolution,omitempty"`
	Delay      time.Duration `json:"delay_ns"`
	Error      string        `json:"error,omitempty"`
}

// Report summarises one replay.
type Report struct {
	RunID     string        `json:"run_id"`
	Macro     string        `json:"macro"`
	Instant   bool          `json:"instant"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Steps     []StepResult  `json:"steps"`
	Executed  int           `json:"executed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	// SelectorFailures counts unresolved or failing steps per selector.
	SelectorFailures map[string]int `json:"selector_failures,omitempty"`
	// Missing is set when the macro name was not found; nothing ran.
	Missing   bool `json:"missing,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}

func (r *Report) add(s StepResult) {
	r.Steps = append(r.Steps, s)
	switch s.Status {
	case StepOK:
		r.Executed++
		return
	case StepSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	if s.Selector != "" {
		if r.SelectorFailures == nil {
			r.SelectorFailures = make(map[string]int)
		}
		r.SelectorFailures[s.Selector]++
	}
}
