package perception

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultTopK is the number of classes kept in a frame summary.
const DefaultTopK = 8

// ClassSummaryEntry is the nearest return of one class within a frame.
type ClassSummaryEntry struct {
	ClassName   string
	MinDistance float64
}

// Summarize reduces detections to the k nearest classes. Each class keeps its
// minimum finite distance; when two returns of a class tie, the first one seen
// is kept. The result is ordered by ascending distance, with classes at equal
// distance left in first-seen order. k <= 0 yields an empty summary.
func Summarize(dets []Detection, k int) []ClassSummaryEntry {
	if k <= 0 {
		return nil
	}

	index := make(map[string]int)
	var entries []ClassSummaryEntry
	for _, d := range dets {
		if math.IsNaN(d.Distance) || math.IsInf(d.Distance, 0) {
			continue
		}
		i, seen := index[d.Class]
		if !seen {
			index[d.Class] = len(entries)
			entries = append(entries, ClassSummaryEntry{ClassName: d.Class, MinDistance: d.Distance})
			continue
		}
		if d.Distance < entries[i].MinDistance {
			entries[i].MinDistance = d.Distance
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].MinDistance < entries[j].MinDistance
	})
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// FormatSummary renders entries as "name:distance" pairs with two decimals,
// separated by ", ". No entries render as the empty string.
func FormatSummary(entries []ClassSummaryEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s:%.2f", e.ClassName, e.MinDistance)
	}
	return strings.Join(parts, ", ")
}
