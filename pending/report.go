package pending

import "fmt"

// SyncReport summarizes one reconciliation sweep.
type SyncReport struct {
	// Attempted counts items sent to the billing service.
	Attempted int `json:"attempted"`
	// Replayed counts items the service acknowledged and that left the queue.
	Replayed int `json:"replayed"`
	// Rejected counts items the service refused; they stay queued.
	Rejected int `json:"rejected"`
	// Remaining is the queue length after the sweep.
	Remaining int `json:"remaining"`
	// Stopped is set when a transport failure ended the sweep early.
	Stopped bool `json:"stopped"`
}

// Clean reports whether the queue was fully drained.
func (r SyncReport) Clean() bool { return r.Remaining == 0 }

func (r SyncReport) String() string {
	s := fmt.Sprintf("attempted=%d replayed=%d rejected=%d remaining=%d",
		r.Attempted, r.Replayed, r.Rejected, r.Remaining)
	if r.Stopped {
		s += " (stopped: service unreachable)"
	}
	return s
}
