package ranking

import (
	"sort"
	"strings"

	"github.com/joelkehle/brief/internal/content"
)

const (
	// DefaultMinClusterSize is the minimum viable cluster size M: fine
	// groups smaller than this merge into their parent category.
	DefaultMinClusterSize = 3

	// UncategorizedTopic is the reserved group for items with no topic tags.
	UncategorizedTopic = "uncategorized"

	topicSeparator = " > "
)

// Cluster groups items by topical similarity and assigns each item a
// cluster id and topic label. Two deterministic passes: first group by each
// item's first topic tag verbatim, then merge any group smaller than
// minSize into its parent category (the tag segment before the first
// " > ", or the whole tag when there is no separator).
//
// Final groups are ordered by descending member count with encounter-order
// tie-break, and ids run 0..k-1 in that order, so id 0 is always the
// largest group. That ordering drives downstream selection priority.
//
// An empty input returns unchanged.
func Cluster(items []content.Item, minSize int) []content.Item {
	if len(items) == 0 {
		return items
	}
	if minSize <= 0 {
		minSize = DefaultMinClusterSize
	}

	// Pass 1: fine groups keyed by the first topic tag. Group order must be
	// first-encounter order, so keep an explicit key list alongside the map.
	fineGroups := map[string][]int{}
	var fineOrder []string
	for i, item := range items {
		primary := UncategorizedTopic
		if len(item.Annotation.Topics) > 0 {
			primary = item.Annotation.Topics[0]
		}
		if _, seen := fineGroups[primary]; !seen {
			fineOrder = append(fineOrder, primary)
		}
		fineGroups[primary] = append(fineGroups[primary], i)
	}

	// Pass 2: absorb small fine groups into their parent category group.
	finalGroups := map[string][]int{}
	var finalOrder []string
	assign := func(key string, members []int) {
		if _, seen := finalGroups[key]; !seen {
			finalOrder = append(finalOrder, key)
		}
		finalGroups[key] = append(finalGroups[key], members...)
	}
	for _, topic := range fineOrder {
		members := fineGroups[topic]
		if len(members) >= minSize {
			assign(topic, members)
			continue
		}
		assign(parentTopic(topic), members)
	}

	// Ids by descending size; stable sort keeps encounter order on ties.
	sorted := append([]string(nil), finalOrder...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return len(finalGroups[sorted[a]]) > len(finalGroups[sorted[b]])
	})

	for id, topic := range sorted {
		for _, idx := range finalGroups[topic] {
			items[idx].ClusterID = id
			items[idx].ClusterTopic = topic
		}
	}
	return items
}

func parentTopic(topic string) string {
	if idx := strings.Index(topic, topicSeparator); idx >= 0 {
		return topic[:idx]
	}
	return topic
}
