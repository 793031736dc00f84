package agent

import (
	"fmt"
	"strings"
	"time"
)

// Step is one tool invocation in a run.
type Step struct {
	Number      int       `json:"number"`
	Action      string    `json:"action"`
	Args        string    `json:"args,omitempty"`
	Observation string    `json:"observation,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Result is the terminal output of a browser run.
type Result struct {
	Summary  string        `json:"summary"`
	Steps    []Step        `json:"steps"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Tokens   int           `json:"tokens"`
}

// String is the payload cached and returned to callers: the summary when the
// agent produced one, otherwise the rendered trace.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	if s := strings.TrimSpace(r.Summary); s != "" {
		return s
	}
	var b strings.Builder
	for _, st := range r.Steps {
		fmt.Fprintf(&b, "%d. %s(%s)", st.Number, st.Action, st.Args)
		switch {
		case st.Error != "":
			fmt.Fprintf(&b, " failed: %s", st.Error)
		case st.Observation != "":
			fmt.Fprintf(&b, " -> %s", truncateStr(st.Observation, 200))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Result) record(action, args, observation string, err error) {
	st := Step{
		Number:      len(r.Steps) + 1,
		Action:      action,
		Args:        args,
		Observation: observation,
		Timestamp:   time.Now(),
	}
	if err != nil {
		st.Error = err.Error()
	}
	r.Steps = append(r.Steps, st)
}

func truncateStr(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
