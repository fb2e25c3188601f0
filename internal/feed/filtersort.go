package feed

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SortKey selects the comparator applied to a feed snapshot.
type SortKey string

const (
	SortLatest        SortKey = "latest"
	SortOldest        SortKey = "oldest"
	SortMostLiked     SortKey = "most_liked"
	SortMostCommented SortKey = "most_commented"
)

// ErrInvalidSortKey indicates an unknown sort key value.
var ErrInvalidSortKey = errors.New("feed: invalid sort key")

// ParseSortKey validates a raw sort key value.
func ParseSortKey(raw string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(raw))) {
	case SortLatest:
		return SortLatest, nil
	case SortOldest:
		return SortOldest, nil
	case SortMostLiked:
		return SortMostLiked, nil
	case SortMostCommented:
		return SortMostCommented, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, raw)
	}
}

// NeedsCounts reports whether the comparator reads engagement counts, which
// only enriched feed items carry.
func (k SortKey) NeedsCounts() bool {
	return k == SortMostLiked || k == SortMostCommented
}

// presetLabelOrder fixes the display priority of the built-in mood tags; any
// other label sorts alphabetically after them.
var presetLabelOrder = []string{
	"Daily",
	"Special Event",
	"Work",
	"Personal",
	"Planning",
	"Art",
	"Life Lesson",
	"Career",
	"Research",
	"Travel",
	"School",
}

// Apply filters the snapshot by the selected tag labels and sorts it by the
// given key. The input slice is never mutated; callers re-run Apply whenever
// the feed, selection, or sort key changes.
func Apply(items []FeedItem, tagLabels []string, key SortKey) []FeedItem {
	return Sort(FilterByTags(items, tagLabels), key)
}

// FilterByTags retains the items carrying every selected label, matched
// case-insensitively. Selected labels combine with AND; an empty selection
// returns a copy of the full input.
func FilterByTags(items []FeedItem, tagLabels []string) []FeedItem {
	selection := make([]string, 0, len(tagLabels))
	for _, label := range tagLabels {
		trimmed := strings.TrimSpace(label)
		if trimmed != "" {
			selection = append(selection, strings.ToLower(trimmed))
		}
	}

	filtered := make([]FeedItem, 0, len(items))
	for _, item := range items {
		if matchesAllLabels(item, selection) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func matchesAllLabels(item FeedItem, selection []string) bool {
	for _, wanted := range selection {
		found := false
		for _, tag := range item.Tags {
			if strings.ToLower(strings.TrimSpace(tag.Label)) == wanted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Sort orders a copy of the items by the chosen key. Timestamp keys compare
// creation time; count keys compare descending with ties broken by creation
// time descending. The sort is stable for fully equal keys.
func Sort(items []FeedItem, key SortKey) []FeedItem {
	sorted := make([]FeedItem, len(items))
	copy(sorted, items)

	switch key {
	case SortOldest:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].DateSeconds < sorted[j].DateSeconds
		})
	case SortMostLiked:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].LikeCount != sorted[j].LikeCount {
				return sorted[i].LikeCount > sorted[j].LikeCount
			}
			return sorted[i].DateSeconds > sorted[j].DateSeconds
		})
	case SortMostCommented:
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].CommentCount != sorted[j].CommentCount {
				return sorted[i].CommentCount > sorted[j].CommentCount
			}
			return sorted[i].DateSeconds > sorted[j].DateSeconds
		})
	default: // SortLatest
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].DateSeconds > sorted[j].DateSeconds
		})
	}
	return sorted
}

// TagVocabulary derives the filter options from the unfiltered feed: distinct
// labels deduplicated case-insensitively, preset labels first in their fixed
// order, the remainder alphabetical.
func TagVocabulary(items []FeedItem) []string {
	presetRank := make(map[string]int, len(presetLabelOrder))
	for rank, label := range presetLabelOrder {
		presetRank[strings.ToLower(label)] = rank
	}

	seen := make(map[string]string)
	for _, item := range items {
		for _, tag := range item.Tags {
			label := strings.TrimSpace(tag.Label)
			if label == "" {
				continue
			}
			folded := strings.ToLower(label)
			if _, ok := seen[folded]; !ok {
				seen[folded] = label
			}
		}
	}

	labels := make([]string, 0, len(seen))
	for _, label := range seen {
		labels = append(labels, label)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		foldedI := strings.ToLower(labels[i])
		foldedJ := strings.ToLower(labels[j])
		rankI, presetI := presetRank[foldedI]
		rankJ, presetJ := presetRank[foldedJ]
		switch {
		case presetI && presetJ:
			return rankI < rankJ
		case presetI:
			return true
		case presetJ:
			return false
		default:
			return foldedI < foldedJ
		}
	})
	return labels
}

// Side places a displayed item on one side of the dream tree stem.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// DisplayItem pairs a feed item with its stem placement.
type DisplayItem struct {
	Item FeedItem
	Row  int
	Side Side
}

// WithPositions assigns incremental display positions: items stagger one row
// at a time and alternate sides of the stem.
func WithPositions(items []FeedItem) []DisplayItem {
	placed := make([]DisplayItem, 0, len(items))
	for index, item := range items {
		side := SideLeft
		if index%2 == 1 {
			side = SideRight
		}
		placed = append(placed, DisplayItem{Item: item, Row: index, Side: side})
	}
	return placed
}
