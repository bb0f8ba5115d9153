package flasher

import (
	"time"

	fx "github.com/robotalks/mtkflash/pkg/framework"
)

// SegmentResult is the result of flashing one segment.
type SegmentResult struct {
	Segment Segment
	Outcome Outcome
	// Phase is where the segment stopped, Terminal when completed.
	Phase State
	Err   error
	// Warnings are failures tolerated in optimistic mode.
	Warnings []error
	// Retries is the session retry count when the segment finished.
	Retries  int
	Duration time.Duration
}

// Report is the result of a run.
type Report struct {
	Started  time.Time
	Duration time.Duration
	Segments []SegmentResult
	// ReleaseErr is the failure to release the pins or close the channel.
	ReleaseErr error
}

// Outcome aggregates the segment outcomes into the most severe one.
func (r *Report) Outcome() Outcome {
	outcome := OK
	for _, res := range r.Segments {
		if res.Outcome > outcome {
			outcome = res.Outcome
		}
	}
	if r.ReleaseErr != nil && outcome < HardwareFault {
		outcome = HardwareFault
	}
	return outcome
}

// Err aggregates the segment errors.
func (r *Report) Err() error {
	var errs fx.AggregatedError
	for _, res := range r.Segments {
		errs.Add(res.Err)
	}
	errs.Add(r.ReleaseErr)
	return errs.Aggregate()
}

// Result finds the result of the named segment.
func (r *Report) Result(name string) (SegmentResult, bool) {
	for _, res := range r.Segments {
		if res.Segment.Name == name {
			return res, true
		}
	}
	return SegmentResult{}, false
}
