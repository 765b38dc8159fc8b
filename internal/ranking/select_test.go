package ranking

import (
	"reflect"
	"testing"

	"github.com/joelkehle/brief/internal/content"
)

func laneItem(title string, score float64, builders, security, business float64) content.Item {
	return content.Item{
		Title:          title,
		RelevanceScore: score,
		Annotation: content.Annotation{
			LaneBuilders: builders,
			LaneSecurity: security,
			LaneBusiness: business,
		},
	}
}

func titles(items []content.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Title
	}
	return out
}

func TestSelectEmptyInput(t *testing.T) {
	if got := Select(nil, 20, 3); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSelectQualifiesForEveryLaneAboveThreshold(t *testing.T) {
	items := []content.Item{
		laneItem("multi", 0.9, 0.8, 0.5, 0.3),
	}
	clusters := Select(items, 20, 3)
	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(clusters))
	}
	c := clusters[0]
	if len(c.Builders) != 1 || len(c.Security) != 1 || len(c.Business) != 1 {
		t.Fatalf("lanes = %d/%d/%d, want 1/1/1 (0.3 qualifies)", len(c.Builders), len(c.Security), len(c.Business))
	}
	if len(c.AllItems) != 1 {
		t.Fatalf("multi-lane item must count once in all_items, got %d", len(c.AllItems))
	}
}

func TestSelectForcesBelowThresholdItemIntoBestLane(t *testing.T) {
	items := []content.Item{
		laneItem("weak", 0.4, 0.1, 0.05, 0.2),
	}
	clusters := Select(items, 20, 3)
	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(clusters))
	}
	c := clusters[0]
	if len(c.Business) != 1 || len(c.Builders) != 0 || len(c.Security) != 0 {
		t.Fatalf("item should be forced into business only, got %d/%d/%d",
			len(c.Builders), len(c.Security), len(c.Business))
	}
}

func TestSelectForcedLaneTieBreaksInCanonicalOrder(t *testing.T) {
	items := []content.Item{
		laneItem("tied", 0.4, 0.2, 0.2, 0.2),
	}
	c := Select(items, 20, 3)[0]
	if len(c.Builders) != 1 {
		t.Fatalf("tie on all lanes should force the first canonical lane (builders), got %v", c)
	}
}

func TestSelectTotalBudgetStopsSelection(t *testing.T) {
	items := []content.Item{
		laneItem("a", 0.9, 0.9, 0, 0),
		laneItem("b", 0.8, 0.9, 0, 0),
		laneItem("c", 0.7, 0, 0.9, 0),
		laneItem("d", 0.6, 0, 0, 0.9),
		laneItem("e", 0.5, 0.9, 0, 0),
	}
	clusters := Select(items, 2, 3)
	total := 0
	for _, c := range clusters {
		total += len(c.AllItems)
	}
	if total != 2 {
		t.Fatalf("selected %d items, want exactly 2 (target_total)", total)
	}
	if got := titles(clusters[0].AllItems); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("budget must go to the highest-scored items, got %v", got)
	}
}

func TestSelectMaxPerLaneCapsEachLane(t *testing.T) {
	items := []content.Item{
		laneItem("a", 0.9, 0.9, 0, 0),
		laneItem("b", 0.8, 0.9, 0, 0),
		laneItem("c", 0.7, 0.9, 0, 0),
		laneItem("d", 0.6, 0.9, 0.4, 0),
	}
	c := Select(items, 20, 3)[0]
	if got := titles(c.Builders); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("builders = %v, want top 3 by score", got)
	}
	// d misses the full builders lane but still lands in security.
	if got := titles(c.Security); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("security = %v, want [d]", got)
	}
	if len(c.AllItems) != 4 {
		t.Fatalf("all_items = %d, want 4", len(c.AllItems))
	}
}

func TestSelectDropsItemWhenForcedLaneIsFull(t *testing.T) {
	items := []content.Item{
		laneItem("a", 0.9, 0.9, 0, 0),
		laneItem("b", 0.8, 0.1, 0.05, 0.05),
	}
	c := Select(items, 20, 1)[0]
	if len(c.AllItems) != 1 || c.AllItems[0].Title != "a" {
		t.Fatalf("b's forced lane is full, it must not be selected: %v", titles(c.AllItems))
	}
}

func TestSelectDropsClustersWithNoSelectedItems(t *testing.T) {
	items := []content.Item{
		laneItem("kept", 0.9, 0.9, 0, 0),
		laneItem("starved", 0.5, 0.9, 0, 0),
	}
	items[0].ClusterID = 0
	items[1].ClusterID = 1
	clusters := Select(items, 1, 3)
	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want only the cluster that got an item", len(clusters))
	}
	if clusters[0].ClusterID != 0 {
		t.Fatalf("surviving cluster id = %d, want 0", clusters[0].ClusterID)
	}
}

func TestSelectLowerIdClustersGetBudgetFirst(t *testing.T) {
	items := []content.Item{
		laneItem("late", 0.95, 0.9, 0, 0),
		laneItem("early", 0.2, 0.9, 0, 0),
	}
	items[0].ClusterID = 1
	items[1].ClusterID = 0
	clusters := Select(items, 1, 3)
	if len(clusters) != 1 || clusters[0].AllItems[0].Title != "early" {
		t.Fatalf("cluster 0 spends the budget before cluster 1: %v", clusters)
	}
}

func TestSelectResortsClustersByMeanScore(t *testing.T) {
	items := []content.Item{
		laneItem("low1", 0.2, 0.9, 0, 0),
		laneItem("low2", 0.3, 0.9, 0, 0),
		laneItem("high", 0.9, 0.9, 0, 0),
	}
	items[0].ClusterID = 0
	items[0].ClusterTopic = "weak"
	items[1].ClusterID = 0
	items[1].ClusterTopic = "weak"
	items[2].ClusterID = 1
	items[2].ClusterTopic = "strong"
	clusters := Select(items, 20, 3)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(clusters))
	}
	if clusters[0].ClusterTopic != "strong" {
		t.Fatalf("presentation order must be mean score desc, got %q first", clusters[0].ClusterTopic)
	}
}

func TestSelectItemsSortedByScoreWithinCluster(t *testing.T) {
	items := []content.Item{
		laneItem("mid", 0.5, 0.9, 0, 0),
		laneItem("top", 0.9, 0.9, 0, 0),
		laneItem("bottom", 0.1, 0.9, 0, 0),
	}
	c := Select(items, 20, 3)[0]
	if got := titles(c.AllItems); !reflect.DeepEqual(got, []string{"top", "mid", "bottom"}) {
		t.Fatalf("all_items = %v, want descending score order", got)
	}
}

func TestSelectDeterministicAcrossRuns(t *testing.T) {
	build := func() []content.Item {
		items := []content.Item{
			laneItem("a", 0.9, 0.8, 0.2, 0.1),
			laneItem("b", 0.9, 0.1, 0.8, 0.1),
			laneItem("c", 0.7, 0.1, 0.1, 0.1),
			laneItem("d", 0.6, 0.4, 0.4, 0.4),
			laneItem("e", 0.5, 0.9, 0.9, 0.9),
		}
		items[3].ClusterID = 1
		items[4].ClusterID = 1
		return items
	}
	first := Select(build(), 4, 2)
	for run := 0; run < 20; run++ {
		again := Select(build(), 4, 2)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged:\n%v\nvs\n%v", run, first, again)
		}
	}
}
