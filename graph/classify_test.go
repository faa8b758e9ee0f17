package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	root := Node{ID: "root", Kind: KindRoot}
	c1 := Node{ID: "c1", Kind: KindConcept, ParentID: "root"}
	c2 := Node{ID: "c2", Kind: KindConcept, ParentID: "root"}
	other := Node{ID: "c9", Kind: KindConcept, ParentID: "root-b"}
	orphan := Node{ID: "c0", Kind: KindConcept}
	s1 := Node{ID: "s1", Kind: KindSubconcept, ParentID: "c1"}
	s2 := Node{ID: "s2", Kind: KindSubconcept, ParentID: "c1"}
	stray := Node{ID: "sx", Kind: KindSubconcept}

	tests := []struct {
		name          string
		source        Node
		target        Node
		wantPartition Partition
		wantKey       string
	}{
		{"concept to concept", c1, c2, PartitionConcept, "root"},
		{"concepts under different roots", c1, other, PartitionNone, ""},
		{"concept without root", orphan, c2, PartitionNone, ""},
		{"subconcept to subconcept", s1, s2, PartitionSubconcept, "c1"},
		{"concept to subconcept keys on source", c1, s1, PartitionSubconcept, "c1"},
		{"subconcept without parent", stray, s1, PartitionNone, ""},
		{"root to concept", root, c1, PartitionNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partition, key := Classify(tt.source, tt.target)
			assert.Equal(t, tt.wantPartition, partition)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestCompletionSet(t *testing.T) {
	at := "2026-01-02T10:00:00Z"
	empty := ""
	records := []Progress{
		{NodeID: "done", CompletedAt: &at},
		{NodeID: "mastered", MasteryScore: 0.7},
		{NodeID: "close", MasteryScore: 0.69},
		{NodeID: "blank", CompletedAt: &empty},
	}

	done := CompletionSet(records, 0.7)

	assert.Equal(t, map[string]bool{"done": true, "mastered": true}, done)

	nodes := ApplyCompletion([]Node{
		{ID: "r", Kind: KindRoot},
		{ID: "done", Kind: KindConcept},
		{ID: "close", Kind: KindConcept},
	}, done)
	assert.True(t, nodes[0].Completed, "roots are always complete")
	assert.True(t, nodes[1].Completed)
	assert.False(t, nodes[2].Completed)
}
