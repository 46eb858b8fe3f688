package service

import (
	"slices"
	"testing"
	"time"

	"github.com/rl1809/stockroom/internal/core/domain"
)

var sampleBase = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// readingsAt builds newest-first readings at the given minute offsets from sampleBase.
func readingsAt(minutes ...int) []domain.Telemetry {
	out := make([]domain.Telemetry, 0, len(minutes))
	for i, m := range minutes {
		out = append(out, domain.Telemetry{
			ID:        int64(i + 1),
			Timestamp: sampleBase.Add(time.Duration(m) * time.Minute),
		})
	}
	slices.SortFunc(out, func(a, b domain.Telemetry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

func minutesOf(rs []domain.Telemetry) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = int(r.Timestamp.Sub(sampleBase) / time.Minute)
	}
	return out
}

func TestDownsample_GapBoundaryInclusive(t *testing.T) {
	in := readingsAt(0, 10, 65, 70, 130)

	got := slices.Collect(Downsample(slices.Values(in), time.Hour, 10))

	// 130 kept; 70 is exactly 60 minutes older and kept; 65 too close;
	// 10 is 60 minutes before 70 and kept; 0 too close.
	want := []int{130, 70, 10}
	if !slices.Equal(minutesOf(got), want) {
		t.Errorf("expected %v, got %v", want, minutesOf(got))
	}
}

func TestDownsample_MaxPoints(t *testing.T) {
	in := readingsAt(0, 60, 120, 180, 240, 300)

	got := slices.Collect(Downsample(slices.Values(in), time.Hour, 3))

	want := []int{300, 240, 180}
	if !slices.Equal(minutesOf(got), want) {
		t.Errorf("expected %v, got %v", want, minutesOf(got))
	}
}

func TestDownsample_Empty(t *testing.T) {
	got := slices.Collect(Downsample(slices.Values([]domain.Telemetry(nil)), time.Hour, 10))
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d readings", len(got))
	}
}

func TestDownsample_NonPositiveMaxPoints(t *testing.T) {
	in := readingsAt(0, 60)
	if got := slices.Collect(Downsample(slices.Values(in), time.Hour, 0)); len(got) != 0 {
		t.Errorf("expected no readings, got %d", len(got))
	}
}

func TestDownsample_ZeroGapKeepsEverything(t *testing.T) {
	in := readingsAt(0, 1, 2, 3)
	got := slices.Collect(Downsample(slices.Values(in), 0, 10))
	if len(got) != 4 {
		t.Errorf("expected 4 readings, got %d", len(got))
	}
}

func TestDownsample_StopsPullingAfterMaxPoints(t *testing.T) {
	in := readingsAt(0, 60, 120, 180, 240)
	pulled := 0
	source := func(yield func(domain.Telemetry) bool) {
		for _, r := range in {
			pulled++
			if !yield(r) {
				return
			}
		}
	}

	got := slices.Collect(Downsample(source, time.Hour, 2))

	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}
	if pulled != 2 {
		t.Errorf("expected source to be pulled twice, got %d", pulled)
	}
}

func TestDownsample_PreservesRawValues(t *testing.T) {
	w := 3.5
	in := []domain.Telemetry{
		{ID: 9, Temperature: 21.5, Humidity: 55, Weight: &w, Timestamp: sampleBase},
	}
	got := slices.Collect(Downsample(slices.Values(in), time.Hour, 10))
	if len(got) != 1 || got[0].ID != 9 || got[0].Temperature != 21.5 || *got[0].Weight != 3.5 {
		t.Errorf("expected reading passed through unchanged, got %+v", got)
	}
}
