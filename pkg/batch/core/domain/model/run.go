package model

import (
	"fmt"
	"time"
)

// RunState is a state of the pipeline driver's state machine.
type RunState string

const (
	StateInit         RunState = "INIT"
	StateEnumerating  RunState = "ENUMERATING"
	StateFetching     RunState = "FETCHING"
	StateDecoding     RunState = "DECODING"
	StateAccumulating RunState = "ACCUMULATING"
	StateFlushing     RunState = "FLUSHING"
	StateDraining     RunState = "DRAINING"
	StateDone         RunState = "DONE"
	StateFailed       RunState = "FAILED"
)

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[RunState][]RunState{
	StateInit:         {StateEnumerating},
	StateEnumerating:  {StateFetching, StateDraining},
	StateFetching:     {StateDecoding, StateEnumerating},
	StateDecoding:     {StateFetching, StateAccumulating},
	StateAccumulating: {StateFlushing, StateEnumerating},
	StateFlushing:     {StateEnumerating, StateDone},
	StateDraining:     {StateFlushing, StateDone},
}

// CanTransition reports whether from → to is a legal transition.
// FAILED is reachable from every non-terminal state.
func CanTransition(from, to RunState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RunSummary is the final report of a run.
type RunSummary struct {
	RunID              string
	Partition          string
	RecordsSeen        int64
	RowsDecoded        int64
	RowsEmpty          int64
	RecordsSkipped     int64
	FetchFailures      int64
	DecodeFailures     int64
	ArtifactsPublished int64
	ArtifactsFailed    int64
	FinalState         RunState
	StartTime          time.Time
	EndTime            time.Time
	Err                error
	Artifacts          []Artifact
}

// Duration returns the run's wall-clock time.
func (s RunSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// String renders the counts reported at the end of a run.
func (s RunSummary) String() string {
	return fmt.Sprintf("state=%s records_seen=%d rows_decoded=%d rows_empty=%d records_skipped=%d artifacts_published=%d artifacts_failed=%d",
		s.FinalState, s.RecordsSeen, s.RowsDecoded, s.RowsEmpty, s.RecordsSkipped, s.ArtifactsPublished, s.ArtifactsFailed)
}
