// Package hnsw implements the Hierarchical Navigable Small World graph for
// approximate nearest neighbor search.
//
// The graph owns no storage of its own: every topology read and write goes
// through the Graph interface, so the durable file is the single source of
// truth and no separate in-memory graph can diverge from it.
package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/syuya2036/vdb/distance"
	"github.com/syuya2036/vdb/internal/queue"
)

// Graph is the storage the index builds on. Implemented by *store.Store;
// every mutation is durable when the call returns.
type Graph interface {
	// EntryPoint returns the committed entry point and max layer.
	// ok is false when the graph is empty.
	EntryPoint() (id uint64, maxLayer int, ok bool)

	// Vector returns the vector of a node.
	Vector(id uint64) ([]float32, error)

	// Neighbors returns the neighbor list of a node at one layer.
	Neighbors(id uint64, layer int) ([]uint64, error)

	// SetNeighbors replaces the neighbor list of a node at one layer.
	SetNeighbors(id uint64, layer int, neighbors []uint64) error

	// Commit publishes all writes since the last commit together with
	// the new entry point and max layer.
	Commit(entryPoint uint64, maxLayer int) error

	// Ordinal maps a node id to its dense append-order index, used for
	// visited tracking during traversal.
	Ordinal(id uint64) (uint32, bool)

	// Count returns the number of nodes, including a pending one that is
	// being inserted.
	Count() uint64
}

const (
	// minimumM is the minimum valid value for M; M == 1 would make the
	// level multiplier 1/ln(1) divide by zero.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per layer.
	DefaultM = 12

	// DefaultEFConstruction is the default beam width during insertion.
	DefaultEFConstruction = 200
)

// Options represents the options for configuring the index.
type Options struct {
	// M is the degree bound per node per layer. Layer 0 allows 2*M.
	M int

	// EFConstruction is the candidate list size while connecting a new
	// node. Larger values improve graph quality at insertion cost.
	EFConstruction int

	// Heuristic selects the diversity-aware neighbor selection instead
	// of plain closest-first.
	Heuristic bool

	// DistanceFunc computes the dissimilarity between two vectors.
	DistanceFunc distance.Func

	// RandomSeed pins the layer-assignment RNG, so tests can assert
	// exact graph shape. Nil seeds from the clock.
	RandomSeed *int64
}

// DefaultOptions holds the default index options.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Heuristic:      true,
	DistanceFunc:   distance.EuclideanDistance,
}

// SearchResult is one ranked node.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Index runs HNSW construction and search over a Graph.
type Index struct {
	graph Graph

	m              int
	mmax0          int
	efConstruction int
	heuristic      bool
	levelMult      float64
	dist           distance.Func

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an index over the given graph.
func New(graph Graph, optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if graph == nil {
		return nil, fmt.Errorf("hnsw: graph must not be nil")
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction < 1 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.DistanceFunc == nil {
		opts.DistanceFunc = distance.EuclideanDistance
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Index{
		graph:          graph,
		m:              opts.M,
		mmax0:          2 * opts.M,
		efConstruction: opts.EFConstruction,
		heuristic:      opts.Heuristic,
		levelMult:      1 / math.Log(float64(opts.M)),
		dist:           opts.DistanceFunc,
		rng:            rng,
	}, nil
}

// DrawLevel draws a node's assigned maximum layer from the exponential
// distribution floor(-ln(U) * levelMult). The randomization is what gives
// the graph its hierarchical small-world property.
func (h *Index) DrawLevel() int {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()

	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * h.levelMult))
}

// Insert connects the node id, whose record and empty topology slots for
// layers 0..level must already be appended to the graph storage, and
// commits the result. The caller serializes insertions.
func (h *Index) Insert(ctx context.Context, id uint64, vector []float32, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ep, maxLayer, ok := h.graph.EntryPoint()
	if !ok {
		// First node: entry point of the whole graph.
		return h.graph.Commit(id, level)
	}

	epVec, err := h.graph.Vector(ep)
	if err != nil {
		return err
	}
	currDist, err := h.dist(vector, epVec)
	if err != nil {
		return err
	}
	currID := ep

	// Greedy single-path descent through the layers the new node does
	// not join, to locate a good starting region.
	for layer := maxLayer; layer > level; layer-- {
		currID, currDist, err = h.greedyClosest(vector, currID, currDist, layer)
		if err != nil {
			return err
		}
	}

	for layer := min(level, maxLayer); layer >= 0; layer-- {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates, err := h.searchLayer(vector, queue.Item{ID: currID, Distance: currDist}, h.efConstruction, layer, nil)
		if err != nil {
			return err
		}

		selected, err := h.selectNeighbors(candidates.heapItems(), h.m)
		if err != nil {
			return err
		}

		ids := make([]uint64, len(selected))
		for i, item := range selected {
			ids[i] = item.ID
		}
		if err := h.graph.SetNeighbors(id, layer, ids); err != nil {
			return err
		}

		// Mutual update: make the new node visible from its neighbors,
		// pruning any list that overflows its degree bound.
		for _, item := range selected {
			if err := h.link(item.ID, id, layer); err != nil {
				return err
			}
		}

		// The closest selected neighbor seeds the next layer down.
		if len(selected) > 0 {
			currID, currDist = selected[0].ID, selected[0].Distance
		}
	}

	if level > maxLayer {
		return h.graph.Commit(id, level)
	}
	return h.graph.Commit(ep, maxLayer)
}

// Search returns the k closest nodes to q, closest first, ties broken by
// ascending id. An empty graph yields an empty result. filter, when
// non-nil, restricts results without restricting traversal.
func (h *Index) Search(ctx context.Context, q []float32, k, ef int, filter func(id uint64) bool) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ep, maxLayer, ok := h.graph.EntryPoint()
	if !ok {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	epVec, err := h.graph.Vector(ep)
	if err != nil {
		return nil, err
	}
	currDist, err := h.dist(q, epVec)
	if err != nil {
		return nil, err
	}
	currID := ep

	for layer := maxLayer; layer > 0; layer-- {
		currID, currDist, err = h.greedyClosest(q, currID, currDist, layer)
		if err != nil {
			return nil, err
		}
	}

	results, err := h.searchLayer(q, queue.Item{ID: currID, Distance: currDist}, ef, 0, filter)
	if err != nil {
		return nil, err
	}

	ranked := make([]SearchResult, 0, results.Len())
	for {
		item, ok := results.Pop()
		if !ok {
			break
		}
		ranked = append(ranked, SearchResult{ID: item.ID, Distance: item.Distance})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].ID < ranked[j].ID
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// greedyClosest walks one layer greedily: move to any neighbor closer than
// the current node, stop when none improves.
func (h *Index) greedyClosest(q []float32, currID uint64, currDist float32, layer int) (uint64, float32, error) {
	for changed := true; changed; {
		changed = false

		neighbors, err := h.graph.Neighbors(currID, layer)
		if err != nil {
			return 0, 0, err
		}

		for _, n := range neighbors {
			vec, err := h.graph.Vector(n)
			if err != nil {
				return 0, 0, err
			}
			d, err := h.dist(q, vec)
			if err != nil {
				return 0, 0, err
			}
			if d < currDist {
				currID, currDist = n, d
				changed = true
			}
		}
	}
	return currID, currDist, nil
}

// resultSet is the bounded best-first result of a layer search: a max-heap
// whose top is the worst kept candidate.
type resultSet struct {
	*queue.PriorityQueue
}

func (rs resultSet) heapItems() []queue.Item {
	items := make([]queue.Item, 0, rs.Len())
	for {
		item, ok := rs.Pop()
		if !ok {
			break
		}
		items = append(items, item)
	}
	// Popped worst-first; reverse to ascending distance.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// searchLayer runs a beam search of width ef within one layer, starting
// from ep. The returned set holds up to ef candidates.
func (h *Index) searchLayer(q []float32, ep queue.Item, ef int, layer int, filter func(id uint64) bool) (resultSet, error) {
	visited := bitset.New(uint(h.graph.Count()))
	if ord, ok := h.graph.Ordinal(ep.ID); ok {
		visited.Set(uint(ord))
	}

	candidates := queue.NewMin(ef)
	candidates.Push(ep)

	results := queue.NewMax(ef)
	if filter == nil || filter(ep.ID) {
		results.Push(ep)
	}

	for candidates.Len() > 0 {
		candidate, _ := candidates.Pop()

		if worst, ok := results.Top(); ok && results.Len() >= ef && candidate.Distance > worst.Distance {
			// No unexpanded candidate can improve the kept set.
			break
		}

		neighbors, err := h.graph.Neighbors(candidate.ID, layer)
		if err != nil {
			return resultSet{}, err
		}

		for _, n := range neighbors {
			ord, ok := h.graph.Ordinal(n)
			if !ok {
				continue
			}
			if visited.Test(uint(ord)) {
				continue
			}
			visited.Set(uint(ord))

			vec, err := h.graph.Vector(n)
			if err != nil {
				return resultSet{}, err
			}
			d, err := h.dist(q, vec)
			if err != nil {
				return resultSet{}, err
			}

			worst, hasWorst := results.Top()
			if results.Len() < ef || !hasWorst || d < worst.Distance {
				candidates.Push(queue.Item{ID: n, Distance: d})
				if filter == nil || filter(n) {
					if results.Len() >= ef {
						results.Pop()
					}
					results.Push(queue.Item{ID: n, Distance: d})
				}
			}
		}
	}

	return resultSet{results}, nil
}

// selectNeighbors picks up to m neighbors from candidates (ascending by
// distance to the new node).
func (h *Index) selectNeighbors(candidates []queue.Item, m int) ([]queue.Item, error) {
	if !h.heuristic {
		if len(candidates) > m {
			candidates = candidates[:m]
		}
		return candidates, nil
	}
	return h.selectNeighborsHeuristic(candidates, m)
}

// selectNeighborsHeuristic keeps a candidate only if it is closer to the
// base than to every already-selected neighbor, spreading edges across
// directions instead of clustering them. Discarded candidates backfill the
// list if fewer than m survive.
func (h *Index) selectNeighborsHeuristic(candidates []queue.Item, m int) ([]queue.Item, error) {
	if len(candidates) <= m {
		return candidates, nil
	}

	selected := make([]queue.Item, 0, m)
	discarded := make([]queue.Item, 0, len(candidates))

	for _, candidate := range candidates {
		if len(selected) >= m {
			break
		}

		candVec, err := h.graph.Vector(candidate.ID)
		if err != nil {
			return nil, err
		}

		keep := true
		for _, sel := range selected {
			selVec, err := h.graph.Vector(sel.ID)
			if err != nil {
				return nil, err
			}
			d, err := h.dist(candVec, selVec)
			if err != nil {
				return nil, err
			}
			if d < candidate.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, candidate)
		} else {
			discarded = append(discarded, candidate)
		}
	}

	for _, candidate := range discarded {
		if len(selected) >= m {
			break
		}
		selected = append(selected, candidate)
	}

	return selected, nil
}

// link adds newID to nodeID's neighbor list at the given layer, pruning
// back to the degree bound when the list overflows.
func (h *Index) link(nodeID, newID uint64, layer int) error {
	bound := h.m
	if layer == 0 {
		bound = h.mmax0
	}

	neighbors, err := h.graph.Neighbors(nodeID, layer)
	if err != nil {
		return err
	}
	neighbors = append(neighbors, newID)

	if len(neighbors) <= bound {
		return h.graph.SetNeighbors(nodeID, layer, neighbors)
	}

	// Overflow: re-rank all neighbors by distance from this node and
	// keep the best bound entries by the same selection rule.
	nodeVec, err := h.graph.Vector(nodeID)
	if err != nil {
		return err
	}

	items := make([]queue.Item, 0, len(neighbors))
	for _, n := range neighbors {
		vec, err := h.graph.Vector(n)
		if err != nil {
			return err
		}
		d, err := h.dist(nodeVec, vec)
		if err != nil {
			return err
		}
		items = append(items, queue.Item{ID: n, Distance: d})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Distance < items[j].Distance })

	selected, err := h.selectNeighbors(items, bound)
	if err != nil {
		return err
	}

	pruned := make([]uint64, len(selected))
	for i, item := range selected {
		pruned[i] = item.ID
	}
	return h.graph.SetNeighbors(nodeID, layer, pruned)
}
