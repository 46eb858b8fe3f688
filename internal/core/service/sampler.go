package service

import (
	"iter"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// Downsample selects representative readings from a newest-first sequence.
// A reading is kept when it is the first one seen or lies at least minGap
// before the last kept reading. Iteration stops after maxPoints readings.
// Readings are passed through unchanged; nothing is averaged.
//
// The returned sequence pulls from readings lazily, so it can be consumed only
// as many times as the source allows.
func Downsample(readings iter.Seq[domain.Telemetry], minGap time.Duration, maxPoints int) iter.Seq[domain.Telemetry] {
	return func(yield func(domain.Telemetry) bool) {
		if maxPoints <= 0 {
			return
		}

		var (
			last domain.Telemetry
			kept int
		)
		for r := range readings {
			if kept > 0 && last.Timestamp.Sub(r.Timestamp) < minGap {
				continue
			}
			last = r
			kept++
			if !yield(r) || kept >= maxPoints {
				return
			}
		}
	}
}
