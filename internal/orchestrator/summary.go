package orchestrator

import (
	"time"

	"aiunit/internal/coverage"
)

// State is a step of the synchronization state machine.
type State int

const (
	StateIdle State = iota
	StateParsing
	StateResolving
	StateAssembling
	StateGenerating
	StateWritingBack
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateResolving:
		return "resolving"
	case StateAssembling:
		return "assembling"
	case StateGenerating:
		return "generating"
	case StateWritingBack:
		return "writing_back"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Hook observes state transitions. source is empty outside the per-entry
// steps.
type Hook func(state State, source string)

// Status is the result class of one entry.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Skip and failure reasons recorded in Outcome.Reason.
const (
	ReasonNoTestFile       = "no_test_file"
	ReasonSourceUnreadable = "source_unreadable"
	ReasonAmbiguous        = "ambiguous"
	ReasonResolveError     = "resolve_error"
	ReasonTestUnreadable   = "test_unreadable"
	ReasonGeneration       = "generation_error"
	ReasonWrite            = "write_error"
	ReasonFunction         = "function_unavailable"
)

// Outcome records what happened to one report entry.
type Outcome struct {
	SourcePath string
	TestPath   string
	Status     Status
	Reason     string
	Err        error
	Missing    coverage.LineSet
	Duration   time.Duration
}

// FileDiff is the change a dry run would have written.
type FileDiff struct {
	Path string
	Diff string
}

// Summary is the result of one run.
type Summary struct {
	RunID       string
	Processed   int
	Skipped     int
	Failed      int
	Modified    []string
	Outcomes    []Outcome
	Diffs       []FileDiff
	Duration    time.Duration
	NothingToDo bool
	DryRun      bool
}

// Total is the number of entries that were looked at.
func (s *Summary) Total() int { return s.Processed + s.Skipped + s.Failed }

// HasFailures reports whether any entry failed.
func (s *Summary) HasFailures() bool { return s.Failed > 0 }

func (s *Summary) record(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusProcessed:
		s.Processed++
		if !s.DryRun {
			s.addModified(o.TestPath)
		}
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

func (s *Summary) addModified(path string) {
	for _, p := range s.Modified {
		if p == path {
			return
		}
	}
	s.Modified = append(s.Modified, path)
}
