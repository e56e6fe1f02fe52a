package ml

import (
	"math"
	"sort"
)

// Node is one node of a binary regression tree. Leaves carry Value.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
}

func (n *Node) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

func (n *Node) depth() int {
	if n == nil || n.Leaf {
		return 0
	}
	return 1 + max(n.Left.depth(), n.Right.depth())
}

type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
}

// fitTree grows a least-squares regression tree on the rows in idx.
func fitTree(x [][]float64, y []float64, idx []int, p treeParams) *Node {
	return grow(x, y, idx, p, 0)
}

func grow(x [][]float64, y []float64, idx []int, p treeParams, depth int) *Node {
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	n := len(idx)
	leaf := &Node{Leaf: true, Value: sum / float64(n)}
	if depth >= p.maxDepth || n < p.minSamplesSplit || n < 2*p.minSamplesLeaf {
		return leaf
	}

	feature, threshold, ok := bestSplit(x, y, idx, p.minSamplesLeaf, sum)
	if !ok {
		return leaf
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      grow(x, y, left, p, depth+1),
		Right:     grow(x, y, right, p, depth+1),
	}
}

// bestSplit maximises sumL²/nL + sumR²/nR, which minimises the children's
// squared error. Thresholds sit halfway between distinct neighbouring values.
func bestSplit(x [][]float64, y []float64, idx []int, minLeaf int, total float64) (int, float64, bool) {
	n := len(idx)
	parent := total * total / float64(n)
	best := parent + 1e-12*math.Max(1, math.Abs(parent))
	bestFeature, bestThreshold, found := -1, 0.0, false

	order := make([]int, n)
	width := len(x[idx[0]])
	for f := 0; f < width; f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		left := 0.0
		for k := 0; k < n-1; k++ {
			left += y[order[k]]
			nl := k + 1
			nr := n - nl
			if nl < minLeaf {
				continue
			}
			if nr < minLeaf {
				break
			}
			lo, hi := x[order[k]][f], x[order[k+1]][f]
			if lo == hi {
				continue
			}
			right := total - left
			score := left*left/float64(nl) + right*right/float64(nr)
			if score > best {
				best = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
