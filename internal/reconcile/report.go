package reconcile

import (
	"sync"
	"time"
)

// Report collects the results of one sync
type Report struct {
	Results  []Result
	Duration time.Duration

	// PrunedDirs are the remote directories removed by deleting their files
	PrunedDirs []string
}

// Count returns how many paths ended with the given action
func (r *Report) Count(a Action) int {
	n := 0
	for _, res := range r.Results {
		if res.Action == a {
			n++
		}
	}
	return n
}

// Failed reports whether any path errored
func (r *Report) Failed() bool {
	return r.Count(ActionErrored) > 0
}

// Lookup returns the result for a path
func (r *Report) Lookup(path string) (Result, bool) {
	for _, res := range r.Results {
		if res.Path == path {
			return res, true
		}
	}
	return Result{}, false
}

// collector appends results from concurrent workers and forwards each one
type collector struct {
	mu       sync.Mutex
	results  []Result
	onResult func(Result)
}

func (c *collector) add(res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
	if c.onResult != nil {
		c.onResult(res)
	}
}
