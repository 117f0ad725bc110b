package importer

import "github.com/orneryd/pathwaygraph/pkg/source"

// Group is one distinct target of a relation attribute and how often it was
// referenced.
type Group struct {
	Instance source.Instance
	Count    int
}

// Aggregate groups the instance values of a relation attribute by id. The
// first instance seen for an id represents the group; values that are not
// instances are ignored. Groups come back in first-seen order.
func Aggregate(values []any) []Group {
	groups := make([]Group, 0, len(values))
	index := make(map[int64]int, len(values))
	for _, v := range values {
		inst, ok := v.(source.Instance)
		if !ok || inst == nil {
			continue
		}
		if i, seen := index[inst.DBID()]; seen {
			groups[i].Count++
			continue
		}
		index[inst.DBID()] = len(groups)
		groups = append(groups, Group{Instance: inst, Count: 1})
	}
	return groups
}
