package allreduce

import "github.com/unixpickle/clockbench/collcomm"

// A TreeAllreducer arranges the ranks in a binary tree
// and performs a reduction by going up the tree to rank
// 0, and then back down the tree to the leaves.
type TreeAllreducer struct{}

// Allreduce calls fn on vectors along a tree and returns
// the resulting reduced vector.
func (t TreeAllreducer) Allreduce(c collcomm.Comm, data []float64,
	fn collcomm.ReduceFn) []float64 {
	parent, children := positionInTree(c.Rank(), c.Size())

	messages := [][]float64{data}
	for _, child := range children {
		messages = append(messages, c.Recv(child, tagTreeUp))
	}

	finalVector := fn(messages...)
	if parent >= 0 {
		c.Send(parent, tagTreeUp, finalVector)
		finalVector = c.Recv(parent, tagTreeDown)
	}

	for _, child := range children {
		c.Send(child, tagTreeDown, finalVector)
	}

	return finalVector
}

// positionInTree returns the child ranks and parent rank
// for a rank in the reduction tree.
//
// There may be no children.
// The parent is -1 for the root.
func positionInTree(idx, size int) (parent int, children []int) {
	parent = -1
	if idx > 0 {
		parent = (idx - 1) / 2
	}
	for _, child := range []int{2*idx + 1, 2*idx + 2} {
		if child < size {
			children = append(children, child)
		}
	}
	return
}
