package cleanup

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/stores"
)

// RunRecord describes one completed sweep
type RunRecord struct {
	RunID       string             `json:"runId"`
	StartedAt   time.Time          `json:"startedAt"`
	Duration    time.Duration      `json:"duration"`
	Report      stores.SweepReport `json:"report"`
	Interrupted bool               `json:"interrupted,omitempty"`
}

// Reporter retains the most recent sweep runs for the admin surface. Run
// IDs are ULIDs so runs sort by start time.
type Reporter struct {
	mu      sync.Mutex
	entropy *rand.Rand
	runs    []RunRecord
	keep    int
}

// NewReporter creates a reporter retaining the last keep runs
func NewReporter(keep int) *Reporter {
	if keep <= 0 {
		keep = 20
	}
	return &Reporter{
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		keep:    keep,
	}
}

// NewRunID mints a sortable run identifier
func (r *Reporter) NewRunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

// Record appends a completed run, evicting the oldest beyond the cap
func (r *Reporter) Record(run RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	if len(r.runs) > r.keep {
		r.runs = r.runs[len(r.runs)-r.keep:]
	}
}

// Recent returns the retained runs, newest last
func (r *Reporter) Recent() []RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunRecord, len(r.runs))
	copy(out, r.runs)
	return out
}
