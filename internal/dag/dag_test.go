package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNodeIsIdempotent(t *testing.T) {
	g := New()
	g.AddNode("Disc1")
	g.AddNode("Disc1")
	g.AddNode("Disc2")

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, g.nodes["Disc2"].index)
}

func TestAddEdgeErrors(t *testing.T) {
	g := New()
	g.AddNode("Disc1")
	g.AddNode("Disc2")

	require.NoError(t, g.AddEdge("Disc1", "Disc2"))
	assert.Contains(t, g.nodes["Disc1"].dependents, "Disc2")

	assert.ErrorContains(t, g.AddEdge("nope", "Disc1"), "source node not found")
	assert.ErrorContains(t, g.AddEdge("Disc1", "nope"), "destination node not found")
	assert.ErrorContains(t, g.AddEdge("Disc1", "Disc1"), "self-referential edge")
}

func TestComponents(t *testing.T) {
	testCases := []struct {
		name  string
		nodes []string
		edges [][2]string
		want  [][]string
	}{
		{
			name:  "empty",
			nodes: nil,
			want:  [][]string{},
		},
		{
			name:  "independent disciplines keep insertion order",
			nodes: []string{"Disc2", "Disc1"},
			want:  [][]string{{"Disc2"}, {"Disc1"}},
		},
		{
			name:  "chain is ordered by data flow",
			nodes: []string{"c", "b", "a"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name:  "strong coupling becomes one component",
			nodes: []string{"design", "sellar1", "sellar2", "obj"},
			edges: [][2]string{
				{"design", "sellar1"}, {"design", "sellar2"},
				{"sellar1", "sellar2"}, {"sellar2", "sellar1"},
				{"sellar1", "obj"}, {"sellar2", "obj"},
			},
			want: [][]string{{"design"}, {"sellar1", "sellar2"}, {"obj"}},
		},
		{
			name:  "loop in a disjoint part",
			nodes: []string{"a", "b", "x", "y", "z"},
			edges: [][2]string{{"a", "b"}, {"x", "y"}, {"y", "z"}, {"z", "y"}},
			want:  [][]string{{"a"}, {"b"}, {"x"}, {"y", "z"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := New()
			for _, n := range tc.nodes {
				g.AddNode(n)
			}
			for _, e := range tc.edges {
				require.NoError(t, g.AddEdge(e[0], e[1]))
			}
			assert.Equal(t, tc.want, g.Components())
		})
	}
}
