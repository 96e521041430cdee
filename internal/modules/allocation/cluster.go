package allocation

import (
	"fmt"
	"math"
)

// Linkage selects the agglomerative merge rule.
type Linkage string

const (
	// LinkageWard minimizes within-cluster variance (conservative clustering).
	LinkageWard Linkage = "ward"
	// LinkageSingle merges on minimum distance (aggressive clustering).
	LinkageSingle Linkage = "single"
)

// dendroNode is a node of the clustering dendrogram. Leaves carry a single
// asset index; internal nodes carry the merge of their children.
type dendroNode struct {
	left   *dendroNode
	right  *dendroNode
	leaves []int // asset indices under this node, in leaf order
	height float64
}

func (n *dendroNode) isLeaf() bool {
	return n.left == nil && n.right == nil
}

// buildDendrogram performs agglomerative clustering over the distance matrix
// using Lance-Williams updates for the selected linkage, returning the root.
// The root's leaves field is the dendrogram leaf order, which places
// correlated assets adjacently.
func buildDendrogram(dist [][]float64, linkage Linkage) (*dendroNode, error) {
	n := len(dist)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 assets to cluster, got %d", n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.IsNaN(dist[i][j]) || math.IsInf(dist[i][j], 0) {
				return nil, fmt.Errorf("degenerate distance matrix at (%d,%d)", i, j)
			}
		}
	}

	// Active clusters and the current inter-cluster distances.
	clusters := make([]*dendroNode, n)
	for i := 0; i < n; i++ {
		clusters[i] = &dendroNode{leaves: []int{i}}
	}

	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		copy(d[i], dist[i])
	}
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = 1
	}

	for merges := 0; merges < n-1; merges++ {
		// Find the closest active pair.
		bestI, bestJ := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if d[i][j] < best {
					best = d[i][j]
					bestI, bestJ = i, j
				}
			}
		}
		if bestI < 0 {
			return nil, fmt.Errorf("clustering degenerated with no mergeable pair")
		}

		merged := &dendroNode{
			left:   clusters[bestI],
			right:  clusters[bestJ],
			leaves: append(append([]int{}, clusters[bestI].leaves...), clusters[bestJ].leaves...),
			height: best,
		}

		// Update distances from the merged cluster to every other active
		// cluster via Lance-Williams.
		nI, nJ := sizes[bestI], sizes[bestJ]
		for k := 0; k < n; k++ {
			if !active[k] || k == bestI || k == bestJ {
				continue
			}
			var updated float64
			switch linkage {
			case LinkageSingle:
				updated = math.Min(d[bestI][k], d[bestJ][k])
			case LinkageWard:
				nK := sizes[k]
				total := float64(nI + nJ + nK)
				updated = math.Sqrt(math.Max(0,
					(float64(nI+nK)*d[bestI][k]*d[bestI][k]+
						float64(nJ+nK)*d[bestJ][k]*d[bestJ][k]-
						float64(nK)*d[bestI][bestJ]*d[bestI][bestJ])/total))
			default:
				return nil, fmt.Errorf("unknown linkage %q", linkage)
			}
			d[bestI][k] = updated
			d[k][bestI] = updated
		}

		// The merged cluster takes slot bestI; bestJ is retired.
		clusters[bestI] = merged
		sizes[bestI] = nI + nJ
		active[bestJ] = false
	}

	for i := 0; i < n; i++ {
		if active[i] {
			return clusters[i], nil
		}
	}
	return nil, fmt.Errorf("clustering finished without a root")
}

// leafOrderSymbols maps the dendrogram leaf order back to ticker symbols.
func leafOrderSymbols(root *dendroNode, symbols []string) []string {
	order := make([]string, 0, len(root.leaves))
	for _, idx := range root.leaves {
		order = append(order, symbols[idx])
	}
	return order
}
