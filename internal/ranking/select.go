package ranking

import (
	"sort"

	"github.com/joelkehle/brief/internal/content"
)

// LaneThreshold is the minimum affinity for an item to qualify naturally
// for a lane before the forced-fallback rule applies.
const LaneThreshold = 0.3

// ClusterSelection is one selected topic cluster: up to maxPerLane items in
// each lane plus the combined list. This is the core's sole output contract
// toward the rendering layer.
type ClusterSelection struct {
	ClusterID    int
	ClusterTopic string
	Builders     []content.Item
	Security     []content.Item
	Business     []content.Item
	AllItems     []content.Item
}

// LaneItems returns the selected items for the given lane.
func (c *ClusterSelection) LaneItems(lane content.Lane) []content.Item {
	switch lane {
	case content.LaneBuilders:
		return c.Builders
	case content.LaneSecurity:
		return c.Security
	case content.LaneBusiness:
		return c.Business
	}
	return nil
}

func (c *ClusterSelection) laneSlot(lane content.Lane) *[]content.Item {
	switch lane {
	case content.LaneBuilders:
		return &c.Builders
	case content.LaneSecurity:
		return &c.Security
	case content.LaneBusiness:
		return &c.Business
	}
	return nil
}

// Select picks top items per cluster per lane for the digest. Clusters are
// processed in ascending cluster-id order (largest group first, per
// Cluster's id assignment), so the biggest story cluster gets selection
// priority when the budget runs out. The returned clusters are re-sorted by
// mean member relevance, descending: presentation order is best average
// story quality first, independent of selection order.
//
// Within a cluster, items are walked in descending relevance order (stable
// on ties). An item joins every lane whose affinity is at or above
// LaneThreshold and still under maxPerLane; an item that qualified for no
// lane is forced into its single highest-affinity lane if that lane has
// capacity. An item that landed in at least one lane is appended to the
// cluster's combined list and counts once against targetTotal, regardless
// of how many lanes it reached. Selection stops across all clusters as
// soon as targetTotal is reached. Clusters with no selected items are
// dropped.
func Select(items []content.Item, targetTotal, maxPerLane int) []ClusterSelection {
	if len(items) == 0 {
		return nil
	}

	byCluster := map[int][]content.Item{}
	topics := map[int]string{}
	for _, item := range items {
		byCluster[item.ClusterID] = append(byCluster[item.ClusterID], item)
		topics[item.ClusterID] = item.ClusterTopic
	}
	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var result []ClusterSelection
	totalSelected := 0

	for _, id := range ids {
		members := byCluster[id]
		sort.SliceStable(members, func(a, b int) bool {
			return members[a].RelevanceScore > members[b].RelevanceScore
		})

		sel := ClusterSelection{ClusterID: id, ClusterTopic: topics[id]}

		for _, item := range members {
			if totalSelected >= targetTotal {
				break
			}

			added := false
			for _, lane := range content.Lanes {
				slot := sel.laneSlot(lane)
				if item.Annotation.LaneScore(lane) >= LaneThreshold && len(*slot) < maxPerLane {
					*slot = append(*slot, item)
					added = true
				}
			}
			if !added {
				slot := sel.laneSlot(item.Annotation.BestLane())
				if len(*slot) < maxPerLane {
					*slot = append(*slot, item)
					added = true
				}
			}
			if added {
				sel.AllItems = append(sel.AllItems, item)
				totalSelected++
			}
		}

		if len(sel.Builders) > 0 || len(sel.Security) > 0 || len(sel.Business) > 0 {
			result = append(result, sel)
		}
	}

	sort.SliceStable(result, func(a, b int) bool {
		return meanScore(result[a].AllItems) > meanScore(result[b].AllItems)
	})
	return result
}

// meanScore averages over the combined list with a floor of 1 on the
// divisor; the drop rule should make an empty list unreachable, but the
// guard keeps the sort total.
func meanScore(items []content.Item) float64 {
	sum := 0.0
	for _, item := range items {
		sum += item.RelevanceScore
	}
	n := len(items)
	if n < 1 {
		n = 1
	}
	return sum / float64(n)
}
