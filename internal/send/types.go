package send

import (
	"time"

	"webtexter/internal/carrier"
	"webtexter/internal/message"
)

// Request is one fully-resolved send request handed over by the CLI/config
// layer. Immutable once constructed.
type Request struct {
	Username   string
	Password   string
	Carrier    carrier.Kind
	Recipients []string
	Body       string
	AllowSplit bool
}

// Result records the outcome of sending one chunk to one number.
type Result struct {
	Recipient string
	Chunk     message.Chunk
	Err       error
	Took      time.Duration
}

func (r Result) OK() bool { return r.Err == nil }

// Status summarizes a whole run.
type Status string

const (
	StatusAll     Status = "all"
	StatusPartial Status = "partial"
	StatusNone    Status = "none"
)

// Run holds every per-(number, chunk) result in attempted order.
type Run struct {
	Results []Result
}

// Status reports whether all, some, or none of the attempted sends
// succeeded. An empty run counts as none.
func (r *Run) Status() Status {
	if r == nil || len(r.Results) == 0 {
		return StatusNone
	}
	ok := 0
	for _, res := range r.Results {
		if res.OK() {
			ok++
		}
	}
	switch ok {
	case 0:
		return StatusNone
	case len(r.Results):
		return StatusAll
	}
	return StatusPartial
}

// Failed counts unsuccessful results.
func (r *Run) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Config tunes the orchestrator.
type Config struct {
	// Workers bounds concurrent carrier sessions. Kept small to stay
	// under carrier rate limits.
	Workers int
	// RatePerSec caps outbound sends across all workers. 0 disables.
	RatePerSec int
	// Timeout bounds each network call.
	Timeout time.Duration
	// CookiePath persists carrier session cookies between runs.
	CookiePath string
}

const (
	defaultWorkers = 2
	maxWorkers     = 4
)

func (c Config) workers() int {
	w := c.Workers
	if w <= 0 {
		w = defaultWorkers
	}
	if w > maxWorkers {
		w = maxWorkers
	}
	return w
}
