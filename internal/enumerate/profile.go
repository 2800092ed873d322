package enumerate

import (
	"context"
	"errors"
	"time"
)

// Timing is the outcome of profiling one strategy.
type Timing struct {
	Strategy  string        `json:"strategy"`
	Supported bool          `json:"supported"`
	Rounds    int           `json:"rounds"`
	Files     int           `json:"files"`
	Total     time.Duration `json:"total_ns"`
	Mean      time.Duration `json:"mean_ns"`
	Error     string        `json:"error,omitempty"`
}

// Profile runs every strategy rounds times against root and reports how long
// a full listing took. Unsupported strategies are reported, not run.
func Profile(ctx context.Context, strategies []Strategy, root string, rounds int) []Timing {
	if rounds < 1 {
		rounds = 1
	}

	timings := make([]Timing, 0, len(strategies))
	for _, st := range strategies {
		t := Timing{Strategy: st.Name(), Supported: true}

		for i := 0; i < rounds; i++ {
			if ctx.Err() != nil {
				t.Error = ctx.Err().Error()
				break
			}

			start := time.Now()
			listing, err := st.Enumerate(ctx, root, false)
			if errors.Is(err, ErrUnsupported) {
				t.Supported = false
				break
			}
			if err != nil {
				t.Error = err.Error()
				break
			}
			paths, err := Collect(listing)
			t.Total += time.Since(start)
			t.Rounds++
			t.Files = len(paths)
			if err != nil {
				t.Error = err.Error()
				break
			}
		}

		if t.Rounds > 0 {
			t.Mean = t.Total / time.Duration(t.Rounds)
		}
		timings = append(timings, t)
	}
	return timings
}
