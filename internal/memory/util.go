package memory

import (
	"math"
	"sort"
	"time"
)

func sortStrings(s []string) { sort.Strings(s) }

// unionTaints merges any number of taint sets into one.
func unionTaints(sets ...map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

// unionTags merges any number of tag slices into a deduplicated, sorted
// slice.
func unionTags(tagSlices ...[]string) []string {
	set := map[string]struct{}{}
	for _, tags := range tagSlices {
		for _, t := range tags {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sortStrings(out)
	return out
}

// relevanceScore implements spec's find_relevant ranking:
// 0.7*importance + 0.3*exp(-age_days/30), age measured from last_accessed
// if set, else created_at.
func relevanceScore(importance float64, createdAt, lastAccessed time.Time, now time.Time) float64 {
	reference := createdAt
	if !lastAccessed.IsZero() {
		reference = lastAccessed
	}
	ageDays := now.Sub(reference).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 0.7*importance + 0.3*math.Exp(-ageDays/30)
}
