package graph

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"treegraph/logger"
	"treegraph/logsource"
	"treegraph/models"
)

var (
	// ErrDuplicateHash means two block records share one hash.
	ErrDuplicateHash = errors.New("duplicate block hash")
	// ErrDanglingReference means a parent or referee hash never appeared in
	// the loaded set.
	ErrDanglingReference = errors.New("unresolved block reference")
	// ErrMultipleRoots means more than one block has the zero parent hash.
	ErrMultipleRoots = errors.New("multiple root blocks")
	// ErrCycleDetected means the parent/referee links violate acyclicity.
	ErrCycleDetected = errors.New("cycle in block links")
)

// node is one arena slot. All relations are dense indices into Graph.nodes,
// which sidesteps ownership cycles between parents, children and epoch
// back-references.
type node struct {
	block    *models.Block
	parent   int32 // -1 for the genesis block
	children []int32
	referees []int32
	depth    int32 // distance from genesis along parent links
	subtree  int32
	epochOf  int32 // arena index of the owning pivot block
	epochSet []int32
	pastSize int32
}

// Graph owns the full block collection of one log. It is append-only during
// load, enriched once by Finalize, and read-only afterwards; a finalized
// Graph is safe for concurrent readers.
type Graph struct {
	nodes    []*node
	index    map[models.Hash]int32
	genesis  int32
	pivot    []int32
	pivotPos map[int32]int // arena index -> pivot chain position
	adv      []int32       // subtree advantage per pivot position

	resolved  bool
	finalized bool
}

// New returns an empty graph ready for Insert.
func New() *Graph {
	return &Graph{
		index:   make(map[models.Hash]int32),
		genesis: -1,
	}
}

// Load runs the whole pipeline for one log path: resolve the artifact, parse
// it, and build the finalized graph.
func Load(path string) (*Graph, error) {
	artifact, err := logsource.Resolve(path)
	if err != nil {
		return nil, err
	}
	blocks, err := logsource.ParseFile(artifact)
	if err != nil {
		return nil, err
	}
	return Build(blocks)
}

// Build constructs and finalizes a graph from already-parsed block records.
func Build(blocks []*models.Block) (*Graph, error) {
	if len(blocks) == 0 {
		return nil, errors.New("no block records to load")
	}
	g := New()
	for _, b := range blocks {
		if err := g.Insert(b); err != nil {
			return nil, err
		}
	}
	if err := g.ResolveLinks(); err != nil {
		return nil, err
	}
	if err := g.Finalize(); err != nil {
		return nil, err
	}
	return g, nil
}

// Insert appends one block record during load.
func (g *Graph) Insert(b *models.Block) error {
	if g.resolved {
		return errors.New("graph is read-only after link resolution")
	}
	if _, exists := g.index[b.Hash]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHash, b.Hash)
	}
	g.index[b.Hash] = int32(len(g.nodes))
	g.nodes = append(g.nodes, &node{block: b, parent: -1, epochOf: -1})
	return nil
}

// Block returns the record for a hash, if present.
func (g *Graph) Block(h models.Hash) (*models.Block, bool) {
	i, ok := g.index[h]
	if !ok {
		return nil, false
	}
	return g.nodes[i].block, true
}

// NumBlocks returns the number of loaded blocks.
func (g *Graph) NumBlocks() int { return len(g.nodes) }

// ResolveLinks walks all blocks once, attaching children and validating that
// every parent and referee hash resolves to a loaded block. It also checks
// the tree invariant: exactly one zero-parent root, every block reachable
// from it along parent links.
func (g *Graph) ResolveLinks() error {
	if len(g.nodes) == 0 {
		return errors.New("graph contains no blocks")
	}
	if g.resolved {
		return nil
	}

	roots := 0
	for i, n := range g.nodes {
		b := n.block
		if b.ParentHash.IsZero() {
			roots++
			g.genesis = int32(i)
		} else {
			pi, ok := g.index[b.ParentHash]
			if !ok {
				return fmt.Errorf("%w: parent %s of block %s", ErrDanglingReference, b.ParentHash, b.Hash)
			}
			n.parent = pi
			g.nodes[pi].children = append(g.nodes[pi].children, int32(i))
		}
		for _, ref := range b.RefereeHashes {
			ri, ok := g.index[ref]
			if !ok {
				return fmt.Errorf("%w: referee %s of block %s", ErrDanglingReference, ref, b.Hash)
			}
			n.referees = append(n.referees, ri)
		}
	}
	if roots > 1 {
		return fmt.Errorf("%w: found %d zero-parent blocks", ErrMultipleRoots, roots)
	}
	if roots == 0 {
		return fmt.Errorf("%w: no zero-parent root block", ErrCycleDetected)
	}

	// Reachability doubles as the parent-cycle check: a cycle among
	// non-root blocks leaves them unreachable from the root.
	reached := 0
	queue := []int32{g.genesis}
	g.nodes[g.genesis].depth = 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		reached++
		for _, c := range g.nodes[cur].children {
			g.nodes[c].depth = g.nodes[cur].depth + 1
			queue = append(queue, c)
		}
	}
	if reached != len(g.nodes) {
		return fmt.Errorf("%w: %d blocks unreachable from genesis via parent links",
			ErrCycleDetected, len(g.nodes)-reached)
	}

	g.resolved = true
	logger.Logger.Debug("Resolved block links", zap.Int("blocks", len(g.nodes)))
	return nil
}
