package datatype

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestIsDescendantOf(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		ancestor Kind
		want     bool
	}{
		{"direct child of root", KindImgFrame, KindBuffer, true},
		{"grandchild of root", KindSpatialImgDetections, KindBuffer, true},
		{"direct parent", KindSpatialImgDetections, KindImgDetections, true},
		{"self is not descendant", KindImgFrame, KindImgFrame, false},
		{"root has no ancestor", KindBuffer, KindImgFrame, false},
		{"siblings unrelated", KindNNData, KindImgFrame, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.IsDescendantOf(tt.ancestor))
		})
	}
}

func TestHierarchyMatches(t *testing.T) {
	exact := Hierarchy{Kind: KindImgDetections}
	assert.True(t, exact.Matches(KindImgDetections))
	assert.False(t, exact.Matches(KindSpatialImgDetections))

	wide := Hierarchy{Kind: KindImgDetections, Descendants: true}
	assert.True(t, wide.Matches(KindImgDetections))
	assert.True(t, wide.Matches(KindSpatialImgDetections))
	assert.False(t, wide.Matches(KindNNData))
}

func TestCompatible(t *testing.T) {
	buffer := []Hierarchy{{Kind: KindBuffer, Descendants: true}}
	frames := []Hierarchy{{Kind: KindImgFrame}}
	tensors := []Hierarchy{{Kind: KindNNData}}

	tests := []struct {
		name string
		out  []Hierarchy
		in   []Hierarchy
		want bool
	}{
		{"identical single kinds", frames, frames, true},
		{"disjoint kinds", frames, tensors, false},
		{"wide input accepts any descendant", frames, buffer, true},
		{"wide output covers narrow input", buffer, tensors, true},
		{"one overlapping pair suffices", append(tensors, frames...), frames, true},
		{"empty declarations never match", nil, frames, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compatible(tt.out, tt.in))
		})
	}
}
