package graph

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"treegraph/models"
)

var errNotFinalized = errors.New("graph not finalized")

// GenesisBlock returns the unique root block.
func (g *Graph) GenesisBlock() *models.Block {
	return g.nodes[g.genesis].block
}

// PivotChain returns the heaviest-subtree path from genesis to the chain
// tip, genesis first.
func (g *Graph) PivotChain() []models.Hash {
	chain := make([]models.Hash, len(g.pivot))
	for i, p := range g.pivot {
		chain[i] = g.nodes[p].block.Hash
	}
	return chain
}

// PivotIndex returns the chain position of a pivot block.
func (g *Graph) PivotIndex(h models.Hash) (int, bool) {
	i, ok := g.index[h]
	if !ok {
		return 0, false
	}
	pos, ok := g.pivotPos[i]
	return pos, ok
}

// PivotBlock returns the block at a pivot chain position.
func (g *Graph) PivotBlock(pos int) *models.Block {
	return g.nodes[g.pivot[pos]].block
}

// AdvantageSeries returns, per pivot chain position, the subtree-size gap
// between the chosen child and its best sibling (0 at the tip).
func (g *Graph) AdvantageSeries() []int {
	series := make([]int, len(g.adv))
	for i, m := range g.adv {
		series[i] = int(m)
	}
	return series
}

// EpochSet returns the blocks owned by a pivot block's epoch, in dense-index
// order. The second result is false for unknown or non-pivot blocks.
func (g *Graph) EpochSet(h models.Hash) ([]models.Hash, bool) {
	i, ok := g.index[h]
	if !ok {
		return nil, false
	}
	if _, isPivot := g.pivotPos[i]; !isPivot {
		return nil, false
	}
	set := make([]models.Hash, len(g.nodes[i].epochSet))
	for k, m := range g.nodes[i].epochSet {
		set[k] = g.nodes[m].block.Hash
	}
	return set, true
}

// EpochSpan returns the elapsed time, in seconds, between a pivot block's
// creation and the latest local observation of any block in its epoch.
func (g *Graph) EpochSpan(h models.Hash) (float64, error) {
	if !g.finalized {
		return 0, errNotFinalized
	}
	i, ok := g.index[h]
	if !ok {
		return 0, fmt.Errorf("unknown block %s", h)
	}
	if _, isPivot := g.pivotPos[i]; !isPivot {
		return 0, fmt.Errorf("block %s is not on the pivot chain", h)
	}

	n := g.nodes[i]
	latest := n.block.LogTimestamp
	for _, m := range n.epochSet {
		if ts := g.nodes[m].block.LogTimestamp; ts > latest {
			latest = ts
		}
	}
	span := latest - float64(n.block.Timestamp)
	if span < 0 {
		span = 0
	}
	return span, nil
}

// AvgEpochTime returns the running mean of epoch spans over all pivot blocks
// from genesis up to and including the given one.
func (g *Graph) AvgEpochTime(h models.Hash) (float64, error) {
	if !g.finalized {
		return 0, errNotFinalized
	}
	i, ok := g.index[h]
	if !ok {
		return 0, fmt.Errorf("unknown block %s", h)
	}
	pos, isPivot := g.pivotPos[i]
	if !isPivot {
		return 0, fmt.Errorf("block %s is not on the pivot chain", h)
	}

	total := 0.0
	for j := 0; j <= pos; j++ {
		span, err := g.EpochSpan(g.nodes[g.pivot[j]].block.Hash)
		if err != nil {
			return 0, err
		}
		total += span
	}
	return total / float64(pos+1), nil
}

// ExportEdges writes one parent,child pair per tree edge as headerless CSV,
// in breadth-first discovery order from genesis.
func (g *Graph) ExportEdges(w io.Writer) error {
	if !g.finalized {
		return errNotFinalized
	}
	bw := bufio.NewWriter(w)
	queue := []int32{g.genesis}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := g.nodes[cur]
		for _, c := range n.children {
			if _, err := fmt.Fprintf(bw, "%s,%s\n", n.block.Hash, g.nodes[c].block.Hash); err != nil {
				return err
			}
			queue = append(queue, c)
		}
	}
	return bw.Flush()
}

// ExportIndices writes the stable hash,index mapping as headerless CSV, in
// dense-assignment (insertion) order.
func (g *Graph) ExportIndices(w io.Writer) error {
	if !g.finalized {
		return errNotFinalized
	}
	bw := bufio.NewWriter(w)
	for i, n := range g.nodes {
		if _, err := fmt.Fprintf(bw, "%s,%d\n", n.block.Hash, i); err != nil {
			return err
		}
	}
	return bw.Flush()
}
