package comments

import (
	"sort"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

// Dedup keeps one event per distinct text, the one with the smallest time
// (the first seen on ties), and returns them sorted by time. The input is
// not modified.
func Dedup(events []domain.CommentEvent) []domain.CommentEvent {
	if len(events) == 0 {
		return events
	}
	// After a stable sort the first occurrence of a text is its earliest.
	sorted := SortStable(events)
	seen := make(map[string]struct{}, len(sorted))
	out := sorted[:0]
	for _, ev := range sorted {
		if _, ok := seen[ev.Text]; ok {
			continue
		}
		seen[ev.Text] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// SortStable returns a copy of events ordered by time, keeping the input
// order of equal times.
func SortStable(events []domain.CommentEvent) []domain.CommentEvent {
	out := make([]domain.CommentEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
