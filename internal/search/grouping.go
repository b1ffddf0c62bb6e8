package search

import (
	"sort"

	"github.com/Aman-CERP/mediadex/internal/media"
)

// GroupResults collapses ranked items into groups by group key.
//
// Members keep their ranked order and groups are built in first-seen order,
// so Styles lists each group's styles as they appeared in the ranking. A
// group scores as its best member. The result is sorted by score descending,
// then group key ascending.
func GroupResults(results []*Result, preferences []string) []*GroupResult {
	var order []string
	members := make(map[string][]*media.Item)
	best := make(map[string]float64)

	for _, r := range results {
		key := r.Item.GroupKey()
		if _, ok := members[key]; !ok {
			order = append(order, key)
			best[key] = r.Score
		} else if r.Score > best[key] {
			best[key] = r.Score
		}
		members[key] = append(members[key], r.Item)
	}

	groups := make([]*GroupResult, 0, len(order))
	for _, key := range order {
		groups = append(groups, &GroupResult{
			Group: media.NewGroup(members[key], preferences, false),
			Score: best[key],
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].GroupKey() < groups[j].GroupKey()
	})
	return groups
}

// paginate applies offset and limit to ranked groups.
func paginate(groups []*GroupResult, offset, limit int) []*GroupResult {
	if offset >= len(groups) {
		return []*GroupResult{}
	}
	groups = groups[offset:]
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	return groups
}
