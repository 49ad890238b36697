package encoder

import "math"

// tolerance below which a trailing remainder is float noise rather than a segment.
const tolerance = 0.001

// SegmentPlan is the time window one segment covers.
type SegmentPlan struct {
	Index    int
	Start    float64
	Duration float64
}

// PlanSegments cuts duration into segmentDuration-long windows. Every window
// but the last has exactly segmentDuration; the last may be shorter.
func PlanSegments(duration, segmentDuration float64) []SegmentPlan {
	if duration <= tolerance || segmentDuration <= 0 {
		return nil
	}

	count := int(math.Floor(duration / segmentDuration))
	if duration-float64(count)*segmentDuration > tolerance {
		count++
	}
	if count == 0 {
		count = 1
	}

	plans := make([]SegmentPlan, count)
	for i := 0; i < count; i++ {
		start := float64(i) * segmentDuration
		d := segmentDuration
		if i == count-1 {
			d = math.Round((duration-start)*1000) / 1000
		}
		plans[i] = SegmentPlan{Index: i, Start: start, Duration: d}
	}
	return plans
}
