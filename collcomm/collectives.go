package collcomm

// Barrier blocks until every rank has entered it.
//
// Ranks report to rank 0 up a binary tree and are then
// released down the same tree.
func Barrier(c Comm) {
	treeReduce(c, 0, tagBarrierUp, nil, Sum)
	treeBcast(c, 0, tagBarrierDown, nil)
}

// Bcast distributes root's vector to every rank along a
// binary tree and returns it.
//
// The data argument is ignored on other ranks.
func Bcast(c Comm, root int, data []float64) []float64 {
	return treeBcast(c, root, tagBcast, data)
}

// Reduce combines every rank's vector with fn along a
// binary tree.
//
// The result is returned on root; other ranks get nil.
func Reduce(c Comm, root int, data []float64, fn ReduceFn) []float64 {
	return treeReduce(c, root, tagReduce, data, fn)
}

// Gather collects one vector from every rank on root,
// indexed by rank.
//
// Other ranks get nil.
func Gather(c Comm, root int, data []float64) [][]float64 {
	if c.Rank() != root {
		c.Send(root, tagGather, data)
		return nil
	}
	res := make([][]float64, c.Size())
	for i := range res {
		if i == root {
			res[i] = copyVec(data)
		} else {
			res[i] = c.Recv(i, tagGather)
		}
	}
	return res
}

// Scatter sends chunks[i] from root to rank i and returns
// the calling rank's chunk.
//
// The chunks argument is ignored on other ranks.
func Scatter(c Comm, root int, chunks [][]float64) []float64 {
	if c.Rank() != root {
		return c.Recv(root, tagScatter)
	}
	if len(chunks) != c.Size() {
		panic("one chunk per rank is required")
	}
	for i, chunk := range chunks {
		if i != root {
			c.Send(i, tagScatter, chunk)
		}
	}
	return copyVec(chunks[root])
}

// Sendrecv sends data to dst and then receives a message
// from src, both with the same tag.
func Sendrecv(c Comm, dst, src, tag int, data []float64) []float64 {
	c.Send(dst, tag, data)
	return c.Recv(src, tag)
}

func treeReduce(c Comm, root, tag int, data []float64, fn ReduceFn) []float64 {
	parent, children := positionInTree(relativeRank(c, root), c.Size())
	messages := [][]float64{data}
	for _, child := range children {
		messages = append(messages, c.Recv(absoluteRank(c, root, child), tag))
	}
	result := fn(messages...)
	if parent >= 0 {
		c.Send(absoluteRank(c, root, parent), tag, result)
		return nil
	}
	return result
}

func treeBcast(c Comm, root, tag int, data []float64) []float64 {
	parent, children := positionInTree(relativeRank(c, root), c.Size())
	if parent >= 0 {
		data = c.Recv(absoluteRank(c, root, parent), tag)
	}
	for _, child := range children {
		c.Send(absoluteRank(c, root, child), tag, data)
	}
	return data
}

func relativeRank(c Comm, root int) int {
	return (c.Rank() - root + c.Size()) % c.Size()
}

func absoluteRank(c Comm, root, rel int) int {
	return (rel + root) % c.Size()
}

// positionInTree returns the parent and children of a
// node in a binary heap of the given size.
//
// There may be no children.
// The parent is -1 for the root node.
func positionInTree(idx, size int) (parent int, children []int) {
	parent = -1
	for depth := uint(0); true; depth++ {
		rowSize := 1 << depth
		rowStart := rowSize - 1
		if idx >= rowStart+rowSize {
			continue
		}
		rowIdx := idx - rowStart
		if depth > 0 {
			parent = rowIdx/2 + (rowSize/2 - 1)
		}
		firstChild := rowIdx*2 + (rowSize*2 - 1)
		for i := 0; i < 2; i++ {
			if firstChild+i < size {
				children = append(children, firstChild+i)
			}
		}
		return
	}
	panic("unreachable")
}
