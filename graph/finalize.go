package graph

import (
	"bytes"
	"fmt"
	"math/bits"
	"sort"

	"go.uber.org/zap"

	"treegraph/logger"
	"treegraph/models"
)

// Finalize enriches a link-resolved graph with all derived fields: subtree
// sizes and child ordering, the pivot chain and its advantage series, the
// epoch partition, and past-set sizes. The stages run strictly in that
// order; each depends on the previous one. Finalize is idempotent: rerunning
// it recomputes identical fields.
func (g *Graph) Finalize() error {
	if !g.resolved {
		return fmt.Errorf("graph links not resolved")
	}

	g.sizeSubtrees()
	g.selectPivotChain()
	g.assignEpochs()
	if err := g.accumulatePastSets(); err != nil {
		return err
	}

	g.finalized = true
	logger.Logger.Info("Graph finalized",
		zap.Int("blocks", len(g.nodes)),
		zap.Int("pivot_length", len(g.pivot)),
		zap.String("genesis", g.nodes[g.genesis].block.Hash.String()))
	return nil
}

// sizeSubtrees computes subtree sizes bottom-up (children before parents, by
// decreasing depth) and orders every child list by descending subtree size,
// with the ascending hash as the deterministic tie-break.
func (g *Graph) sizeSubtrees() {
	order := make([]int32, len(g.nodes))
	for i := range order {
		order[i] = int32(i)
	}
	sort.Slice(order, func(a, b int) bool {
		return g.nodes[order[a]].depth > g.nodes[order[b]].depth
	})

	for _, i := range order {
		n := g.nodes[i]
		size := int32(1)
		for _, c := range n.children {
			size += g.nodes[c].subtree
		}
		n.subtree = size
		n.block.SubtreeSize = int(size)
	}

	for _, n := range g.nodes {
		children := n.children
		sort.Slice(children, func(a, b int) bool {
			ca, cb := g.nodes[children[a]], g.nodes[children[b]]
			if ca.subtree != cb.subtree {
				return ca.subtree > cb.subtree
			}
			return bytes.Compare(ca.block.Hash[:], cb.block.Hash[:]) < 0
		})
		n.block.Children = make([]models.Hash, len(children))
		for k, c := range children {
			n.block.Children[k] = g.nodes[c].block.Hash
		}
	}
}

// selectPivotChain follows the heaviest-subtree child from genesis to a tip
// (the GHAST rule) and records, at each pivot block, the advantage of the
// chosen child's subtree over the best remaining sibling's.
func (g *Graph) selectPivotChain() {
	g.pivot = g.pivot[:0]
	g.adv = g.adv[:0]
	g.pivotPos = make(map[int32]int)

	cur := g.genesis
	for {
		g.pivotPos[cur] = len(g.pivot)
		g.pivot = append(g.pivot, cur)

		n := g.nodes[cur]
		if len(n.children) == 0 {
			g.adv = append(g.adv, 0)
			break
		}
		best := g.nodes[n.children[0]].subtree
		second := int32(0)
		if len(n.children) > 1 {
			second = g.nodes[n.children[1]].subtree
		}
		g.adv = append(g.adv, best-second)
		cur = n.children[0]
	}
}

// assignEpochs partitions all blocks into epochs in pivot-chain order. Each
// pivot block collects, via backward parent and referee edges, every block
// not yet owned by an earlier epoch; ownership is first-come. Blocks outside
// the past of the pivot tip (its anticone at the end of the log) fall into
// the tip's epoch so the partition covers the whole block set.
func (g *Graph) assignEpochs() {
	for _, n := range g.nodes {
		n.epochOf = -1
		n.epochSet = nil
	}

	for _, p := range g.pivot {
		var set []int32
		stack := []int32{p}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n := g.nodes[x]
			if n.epochOf >= 0 {
				continue
			}
			n.epochOf = p
			set = append(set, x)
			if n.parent >= 0 {
				stack = append(stack, n.parent)
			}
			stack = append(stack, n.referees...)
		}
		sortIndices(set)
		g.nodes[p].epochSet = set
	}

	tip := g.pivot[len(g.pivot)-1]
	var leftover []int32
	for i, n := range g.nodes {
		if n.epochOf < 0 {
			n.epochOf = tip
			leftover = append(leftover, int32(i))
		}
	}
	if len(leftover) > 0 {
		tn := g.nodes[tip]
		tn.epochSet = append(tn.epochSet, leftover...)
		sortIndices(tn.epochSet)
	}

	for _, n := range g.nodes {
		n.block.EpochBlock = g.nodes[n.epochOf].block.Hash
		n.block.EpochSize = 0
	}
	for _, p := range g.pivot {
		g.nodes[p].block.EpochSize = len(g.nodes[p].epochSet)
	}
}

// accumulatePastSets computes, for every block, the size of its causal
// history (all blocks reachable via parent and referee edges) with
// dense-index bitsets merged in topological order, so each block's set is
// built from its parents' and referees' already-finished sets.
func (g *Graph) accumulatePastSets() error {
	n := len(g.nodes)

	// Kahn's algorithm over dependency edges (parent/referee -> block); the
	// insertion order of a well-formed log is already topological, but the
	// graph may have been built from records in any order.
	indegree := make([]int32, n)
	dependents := make([][]int32, n)
	for i, nd := range g.nodes {
		if nd.parent >= 0 {
			indegree[i]++
			dependents[nd.parent] = append(dependents[nd.parent], int32(i))
		}
		for _, r := range nd.referees {
			indegree[i]++
			dependents[r] = append(dependents[r], int32(i))
		}
	}
	queue := make([]int32, 0, n)
	for i := range g.nodes {
		if indegree[i] == 0 {
			queue = append(queue, int32(i))
		}
	}

	words := (n + 63) / 64
	past := make([]bitset, n)
	processed := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		processed++

		nd := g.nodes[cur]
		bs := newBitset(words)
		if nd.parent >= 0 {
			bs.or(past[nd.parent])
			bs.set(nd.parent)
		}
		for _, r := range nd.referees {
			bs.or(past[r])
			bs.set(r)
		}
		past[cur] = bs
		nd.pastSize = int32(bs.count())
		nd.block.PastSetSize = int(nd.pastSize)

		for _, d := range dependents[cur] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if processed != n {
		return fmt.Errorf("%w: %d blocks on a referee cycle", ErrCycleDetected, n-processed)
	}
	return nil
}

func sortIndices(s []int32) {
	sort.Slice(s, func(a, b int) bool { return s[a] < s[b] })
}

// bitset is a fixed-width set over dense block indices.
type bitset []uint64

func newBitset(words int) bitset { return make(bitset, words) }

func (b bitset) set(i int32) { b[i>>6] |= 1 << (uint(i) & 63) }

func (b bitset) or(o bitset) {
	for w := range o {
		b[w] |= o[w]
	}
}

func (b bitset) count() int {
	c := 0
	for _, w := range b {
		c += bits.OnesCount64(w)
	}
	return c
}
