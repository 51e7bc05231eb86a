package procmanager

import "sort"

// sortByStartedAt orders records by StartedAt ascending, stably.
func sortByStartedAt(records []ProcessRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}
