package source

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vjranagit/histextract/pkg/types"
)

func TestModelLookups(t *testing.T) {
	m := NewModel()
	m.AddNodeSet("PART-1-1", "LOWER_RIM_REFERENCE_POINT", 7, 8)
	m.AddNodeSet("PART-1-1", "ROAD_REFERENCE_POINT", 9)
	m.SetHistory("Step-2", Node{"PART-1-1", 7}, "RF1", types.Series{{Time: 0, Value: 1}})
	m.AddStep("Step-1")
	m.AddStep("Step-2")

	if diff := cmp.Diff([]string{"Step-2", "Step-1"}, m.StepNames()); diff != "" {
		t.Errorf("Unexpected step order (-want +got):\n%s", diff)
	}

	names, err := m.NodeSetNames("PART-1-1")
	if err != nil {
		t.Fatalf("Failed to list node sets: %v", err)
	}
	if diff := cmp.Diff([]string{"LOWER_RIM_REFERENCE_POINT", "ROAD_REFERENCE_POINT"}, names); diff != "" {
		t.Errorf("Unexpected node sets (-want +got):\n%s", diff)
	}

	ns, err := m.NodeSet("PART-1-1", "LOWER_RIM_REFERENCE_POINT")
	if err != nil {
		t.Fatalf("Failed to get node set: %v", err)
	}
	if len(ns.Nodes) != 2 || ns.Nodes[0] != (Node{"PART-1-1", 7}) {
		t.Errorf("Unexpected nodes: %v", ns.Nodes)
	}

	region, err := m.HistoryRegion("Step-2", ns.Nodes[0])
	if err != nil {
		t.Fatalf("Failed to get history region: %v", err)
	}
	if len(region["RF1"]) != 1 {
		t.Errorf("Expected 1 RF1 sample, got %d", len(region["RF1"]))
	}
}

func TestModelNotFound(t *testing.T) {
	m := NewModel()
	m.AddNodeSet("PART-1-1", "UPPER_RIM_REFERENCE_POINT", 1)
	m.AddStep("Step-1")

	testCases := []struct {
		name string
		call func() error
	}{
		{"instance", func() error { _, err := m.NodeSetNames("PART-2-1"); return err }},
		{"node set", func() error { _, err := m.NodeSet("PART-1-1", "ROAD_REFERENCE_POINT"); return err }},
		{"step", func() error { _, err := m.HistoryRegion("Step-9", Node{"PART-1-1", 1}); return err }},
		{"region", func() error { _, err := m.HistoryRegion("Step-1", Node{"PART-1-1", 1}); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestModelApply(t *testing.T) {
	m := NewModel()
	entries := []types.ExportEntry{
		{Kind: types.KindStep, Step: "Step-1"},
		{Kind: types.KindNodeSet, Instance: "PART-1-1", Name: "ROAD_REFERENCE_POINT", Nodes: []int{3}},
		{Kind: types.KindHistory, Step: "Step-1", Instance: "PART-1-1", Node: 3, Variable: "U2", Data: types.Series{{Time: 0, Value: 0}, {Time: 1, Value: -2}}},
	}
	for i := range entries {
		if err := m.Apply(&entries[i]); err != nil {
			t.Fatalf("Failed to apply entry %d: %v", i, err)
		}
	}

	if err := m.Apply(&types.ExportEntry{Kind: "element"}); err == nil {
		t.Error("Expected error for unknown entry kind")
	}

	region, err := m.HistoryRegion("Step-1", Node{"PART-1-1", 3})
	if err != nil {
		t.Fatalf("Failed to get history region: %v", err)
	}
	if diff := cmp.Diff(types.Series{{Time: 0, Value: 0}, {Time: 1, Value: -2}}, region["U2"]); diff != "" {
		t.Errorf("Unexpected U2 series (-want +got):\n%s", diff)
	}

	if m.Closed() {
		t.Error("Model should not be closed yet")
	}
	m.Close()
	if !m.Closed() {
		t.Error("Model should be closed")
	}
}
