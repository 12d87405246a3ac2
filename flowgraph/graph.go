// Package flowgraph implements the FlowGraph execution kernel: a typed,
// settings-driven directed acyclic graph whose nodes are executed by a
// columnar lazy query engine reached through the lazyframe collaborator
// interfaces.
package flowgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Edwardvaneechoud/Flowfile-sub004/log"
)

// ExecutionMode selects the execution engine strategy (spec §4.4).
type ExecutionMode string

const (
	ModeDevelopment ExecutionMode = "development"
	ModePerformance ExecutionMode = "performance"
)

// ExecutionLocation selects where sink execution is routed (SPEC_FULL §C).
type ExecutionLocation string

const (
	LocationLocal  ExecutionLocation = "local"
	LocationRemote ExecutionLocation = "remote"
	LocationAuto   ExecutionLocation = "auto"
)

// GraphSettings are the graph-wide knobs from spec §3 Entity: Graph.
type GraphSettings struct {
	ExecutionMode     ExecutionMode
	ExecutionLocation ExecutionLocation
	AutoSave          bool
	ShowProgress      bool
}

// DefaultGraphSettings matches the teacher's habit of giving every
// options-bearing type a documented zero-config default.
func DefaultGraphSettings() GraphSettings {
	return GraphSettings{
		ExecutionMode:     ModeDevelopment,
		ExecutionLocation: LocationLocal,
		AutoSave:          false,
		ShowProgress:      true,
	}
}

// Graph is the source of truth for a flow's structure (spec §4.2).
// Structural edits (AddNode, Connect, Disconnect, UpdateSettings,
// RemoveNode) take g.mu exclusively; read operations (GetNode, Nodes,
// Edges, TopologicalOrder, StartNodes) take it shared, so they may run
// concurrently with each other but not with a writer. The lock covers a
// single method call: a run in flowgraph/engine calls these methods one at
// a time and is not serialized against structural edits made while it is
// in progress.
type Graph struct {
	mu sync.RWMutex

	id       int
	name     string
	settings GraphSettings

	nodes  map[NodeID]*Node
	edges  map[NodeID][]*Edge // keyed by From
	inputs map[NodeID]map[Slot]*Edge // keyed by To, then slot — enforces "satisfied at most once"

	nextID NodeID
	prober SourceProber
}

// SetSourceProber installs the collaborator used to infer schema for
// source_table nodes that declare no schema (spec §4.5's one bounded-probe
// exception). A nil prober leaves such nodes schema-unknown.
func (g *Graph) SetSourceProber(p SourceProber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prober = p
	g.propagateSchemasLocked(g.prober)
}

// New creates an empty graph.
func New(id int, name string, settings GraphSettings) *Graph {
	return &Graph{
		id:       id,
		name:     name,
		settings: settings,
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[NodeID][]*Edge),
		inputs:   make(map[NodeID]map[Slot]*Edge),
	}
}

// ID returns the graph's stable identity.
func (g *Graph) ID() int { return g.id }

// Name returns the graph's display name.
func (g *Graph) Name() string { return g.name }

// Settings returns the graph-wide settings.
func (g *Graph) Settings() GraphSettings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.settings
}

// SetSettings replaces the graph-wide settings. This does not invalidate
// any node: execution mode/location only affect how Run dispatches, not
// node definitions.
func (g *Graph) SetSettings(settings GraphSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.settings = settings
}

// AddNode allocates a fresh node id and inserts a node carrying settings.
// The node's description, canvas position, and cache flag are taken from
// settings' Shared fields (spec §4.2 add_node).
func (g *Graph) AddNode(settings NodeSettings) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++

	shared := settings.SharedFields()
	node := &Node{
		id:          id,
		kind:        settings.Kind(),
		settings:    settings,
		description: shared.Description,
		posX:        shared.PosX,
		posY:        shared.PosY,
		cacheFlag:   shared.CacheResults,
		runState:    RunUnset,
	}
	hash, err := computeContentHash(node.kind, node.settings, nil)
	if err != nil {
		return 0, fmt.Errorf("flowgraph: hashing node settings: %w", err)
	}
	node.contentHash = hash

	g.nodes[id] = node
	g.propagateSchemasLocked(g.prober)
	log.Debugf("flowgraph: added node %d (%s)", id, node.kind)
	return id, nil
}

// Connect adds an edge from -> to at the given slot. It fails with
// ErrCycle if the edge would create one, ErrSlotTaken if the destination
// slot is already occupied, and ErrUnknownNode if either endpoint does not
// exist; on failure the graph is unchanged (spec §4.2 connect).
func (g *Graph) Connect(from, to NodeID, slot Slot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == to {
		return fmt.Errorf("flowgraph: self-loop %d -> %d: %w", from, to, ErrCycle)
	}
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("flowgraph: source node %d: %w", from, ErrUnknownNode)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("flowgraph: destination node %d: %w", to, ErrUnknownNode)
	}
	if slotTaken := g.inputs[to]; slotTaken != nil {
		if _, occupied := slotTaken[slot]; occupied {
			return fmt.Errorf("flowgraph: slot %s on node %d: %w", slot, to, ErrSlotTaken)
		}
	}
	if g.wouldCycle(from, to) {
		return fmt.Errorf("flowgraph: connecting %d -> %d: %w", from, to, ErrCycle)
	}

	edge := &Edge{From: from, To: to, ToSlot: slot}
	g.edges[from] = append(g.edges[from], edge)
	if g.inputs[to] == nil {
		g.inputs[to] = make(map[Slot]*Edge)
	}
	g.inputs[to][slot] = edge

	g.rehash(toNode)
	g.invalidateDownstream(to)
	g.propagateSchemasLocked(g.prober)
	log.Debugf("flowgraph: connected %d -> %d (slot %s)", from, to, slot)
	return nil
}

// wouldCycle reports whether adding from->to would create a cycle: true
// when to can already reach from (spec §4.2 algorithm: DFS from `to`
// looking for `from`).
func (g *Graph) wouldCycle(from, to NodeID) bool {
	visited := make(map[NodeID]bool)
	var dfs func(NodeID) bool
	dfs = func(n NodeID) bool {
		if n == from {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, e := range g.edges[n] {
			if dfs(e.To) {
				return true
			}
		}
		return false
	}
	return dfs(to)
}

// Disconnect removes an edge. Downstream nodes become stale and may become
// unrunnable (spec §4.2 disconnect).
func (g *Graph) Disconnect(from, to NodeID, slot Slot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	edges := g.edges[from]
	idx := -1
	for i, e := range edges {
		if e.To == to && e.ToSlot == slot {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("flowgraph: no edge %d -> %d (slot %s): %w", from, to, slot, ErrUnknownNode)
	}
	g.edges[from] = append(edges[:idx], edges[idx+1:]...)
	if slots := g.inputs[to]; slots != nil {
		delete(slots, slot)
	}

	if toNode, ok := g.nodes[to]; ok {
		g.rehash(toNode)
	}
	g.invalidateDownstream(to)
	g.propagateSchemasLocked(g.prober)
	return nil
}

// UpdateSettings replaces a node's settings. If the resulting content hash
// differs from the previous one, every strictly downstream node loses its
// cached result and schema (spec §4.2 update_settings).
func (g *Graph) UpdateSettings(id NodeID, newSettings NodeSettings) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("flowgraph: node %d: %w", id, ErrUnknownNode)
	}
	if newSettings.Kind() != node.kind {
		return fmt.Errorf("flowgraph: node %d: settings kind %s does not match node kind %s: %w",
			id, newSettings.Kind(), node.kind, ErrArityMismatch)
	}
	previousHash := node.contentHash
	node.settings = newSettings
	node.description = newSettings.SharedFields().Description
	node.cacheFlag = newSettings.SharedFields().CacheResults
	g.rehash(node)

	if node.contentHash != previousHash {
		g.invalidateDownstream(id)
		node.runState = RunUnset
		node.lastResult = NodeResult{}
	}
	g.propagateSchemasLocked(g.prober)
	return nil
}

// RemoveNode removes a node and its incident edges. Downstream becomes
// stale (spec §4.2 remove_node).
func (g *Graph) RemoveNode(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("flowgraph: node %d: %w", id, ErrUnknownNode)
	}

	g.invalidateDownstream(id)

	downstream := append([]*Edge(nil), g.edges[id]...)
	delete(g.nodes, id)
	delete(g.edges, id)
	delete(g.inputs, id)
	for from, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.To != id {
				kept = append(kept, e)
			}
		}
		g.edges[from] = kept
	}
	for to, slots := range g.inputs {
		for slot, e := range slots {
			if e.From == id {
				delete(slots, slot)
			}
		}
		if len(slots) == 0 {
			delete(g.inputs, to)
		}
	}
	for _, e := range downstream {
		if n, ok := g.nodes[e.To]; ok {
			g.rehash(n)
			g.invalidateDownstream(e.To)
		}
	}
	g.propagateSchemasLocked(g.prober)
	return nil
}

// rehash recomputes a single node's content hash from its current settings
// and its direct upstream nodes' hashes, ordered by slot (LessSlot, which
// compares main[i] slots by numeric index) for determinism (spec §3
// "deterministic").
func (g *Graph) rehash(node *Node) {
	upstream := g.orderedUpstreamLocked(node.id)
	hashes := make([]string, len(upstream))
	for i, u := range upstream {
		hashes[i] = u.contentHash
	}
	hash, err := computeContentHash(node.kind, node.settings, hashes)
	if err != nil {
		// Settings already validated at construction; canonical() over a
		// validated value cannot fail to marshal.
		panic(fmt.Sprintf("flowgraph: unexpected hashing failure for node %d: %v", node.id, err))
	}
	node.contentHash = hash
}

// orderedUpstreamLocked returns the direct upstream nodes of id ordered by
// LessSlot, for hash-input determinism. Caller must hold g.mu.
func (g *Graph) orderedUpstreamLocked(id NodeID) []*Node {
	slots := g.inputs[id]
	if len(slots) == 0 {
		return nil
	}
	ordered := make([]Slot, 0, len(slots))
	for s := range slots {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return LessSlot(ordered[i], ordered[j]) })
	out := make([]*Node, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, g.nodes[slots[s].From])
	}
	return out
}

// invalidateDownstream walks downstream from id via a single BFS,
// resetting run state and schema for every node it reaches (spec §4.2
// "Hash propagation uses a single downstream BFS to invalidate"), then
// recomputes the reached nodes' content hashes in topological order so
// each one sees its upstream's fresh hash.
func (g *Graph) invalidateDownstream(id NodeID) {
	queue := []NodeID{id}
	visited := map[NodeID]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.edges[cur] {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			if n, ok := g.nodes[e.To]; ok {
				n.runState = RunUnset
				n.lastResult = NodeResult{}
				n.schema = SchemaResult{}
			}
			queue = append(queue, e.To)
		}
	}
	order, err := g.topologicalOrderLocked()
	if err != nil {
		return
	}
	for _, nid := range order {
		if visited[nid] {
			g.rehash(g.nodes[nid])
		}
	}
}

// GetNode returns a node by id.
func (g *Graph) GetNode(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes, ordered by ascending id for determinism.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Edges returns all edges in the graph, ordered by (From, To, ToSlot) for
// determinism.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Edge
	for _, edges := range g.edges {
		out = append(out, edges...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		if out[i].To != out[j].To {
			return out[i].To < out[j].To
		}
		return LessSlot(out[i].ToSlot, out[j].ToSlot)
	})
	return out
}

// UpstreamOf returns the direct upstream edges into id, ordered by slot.
func (g *Graph) UpstreamOf(id NodeID) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	slots := g.inputs[id]
	out := make([]*Edge, 0, len(slots))
	for _, e := range slots {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return LessSlot(out[i].ToSlot, out[j].ToSlot) })
	return out
}

// DownstreamOf returns the direct downstream edges out of id, ordered by
// (To, ToSlot).
func (g *Graph) DownstreamOf(id NodeID) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := append([]*Edge(nil), g.edges[id]...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return LessSlot(edges[i].ToSlot, edges[j].ToSlot)
	})
	return edges
}

// TopologicalOrder returns a deterministic linearization of the edge
// relation using Kahn's algorithm with ascending-id tiebreak (spec §4.2).
// It fails with ErrCycle if the graph is not in fact acyclic — a defensive
// check, since Connect already rejects cycle-forming edges.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topologicalOrderLocked()
}

func (g *Graph) topologicalOrderLocked() ([]NodeID, error) {
	inDegree := make(map[NodeID]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for _, edges := range g.edges {
		for _, e := range edges {
			inDegree[e.To]++
		}
	}

	ready := make([]NodeID, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		nextReady := g.edges[cur]
		sorted := append([]*Edge(nil), nextReady...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].To < sorted[j].To })
		for _, e := range sorted {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				ready = append(ready, e.To)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

// StartNodes returns the nodes with zero satisfied required input slots,
// ordered by ascending id (spec §4.2 start_nodes).
func (g *Graph) StartNodes() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []NodeID
	for id := range g.nodes {
		if len(g.inputs[id]) == 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SinkNodes returns nodes with no downstream edge, ordered by ascending id
// — these are the nodes the execution engine treats as run roots (spec
// §4.4 "for each sink").
func (g *Graph) SinkNodes() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []NodeID
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckArity reports ErrArityMismatch if the number of connected inputs to
// id does not match its declared arity, and ErrMissingUpstream if a
// required slot for a Single/Binary node is absent.
func (g *Graph) CheckArity(id NodeID) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("flowgraph: node %d: %w", id, ErrUnknownNode)
	}
	connected := len(g.inputs[id])
	switch node.Arity() {
	case ArityNone:
		if connected != 0 {
			return fmt.Errorf("flowgraph: node %d is a source but has %d connected inputs: %w", id, connected, ErrArityMismatch)
		}
	case AritySingle:
		if connected == 0 {
			return fmt.Errorf("flowgraph: node %d requires its main input: %w", id, ErrMissingUpstream)
		}
	case ArityBinary:
		if connected < 2 {
			return fmt.Errorf("flowgraph: node %d requires both left and right inputs (has %d): %w", id, connected, ErrMissingUpstream)
		}
	case ArityVariadic:
		if connected == 0 {
			return fmt.Errorf("flowgraph: node %d requires at least one input: %w", id, ErrMissingUpstream)
		}
	}
	return nil
}

// RecordResult stores a node's execution outcome. It is the execution
// engine's only write path into Node's run-state fields — Node itself
// exposes no public setter, so every state transition described in spec
// §4.3's run_state machine passes through here, the same way every
// structural mutation passes through Graph rather than Node.
func (g *Graph) RecordResult(id NodeID, state RunState, result NodeResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("flowgraph: node %d: %w", id, ErrUnknownNode)
	}
	node.runState = state
	node.lastResult = result
	return nil
}

// Clone deep-copies the graph, preserving ids, content hashes, and
// structure. Nothing in this module calls it: the fluent builder adds
// nodes to the shared graph, and Validate inspects the graph in place.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := New(g.id, g.name, g.settings)
	out.nextID = g.nextID
	out.prober = g.prober
	for id, n := range g.nodes {
		clone := *n
		out.nodes[id] = &clone
	}
	for from, edges := range g.edges {
		cloned := make([]*Edge, len(edges))
		for i, e := range edges {
			ce := *e
			cloned[i] = &ce
			if out.inputs[e.To] == nil {
				out.inputs[e.To] = make(map[Slot]*Edge)
			}
			out.inputs[e.To][e.ToSlot] = &ce
		}
		out.edges[from] = cloned
	}
	return out
}

// Validate runs the structural checks a `check` CLI invocation needs: the
// graph must be acyclic (always true if Connect was used exclusively) and
// every node's declared arity must be satisfied.
func (g *Graph) Validate(ctx context.Context) error {
	if _, err := g.TopologicalOrder(); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := g.CheckArity(n.ID()); err != nil {
			return err
		}
	}
	return nil
}
