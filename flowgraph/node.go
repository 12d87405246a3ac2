package flowgraph

import (
	"strconv"
	"strings"
)

// NodeID identifies a Node within its owning Graph (spec §3).
type NodeID int

// Slot is a named input position on a node (GLOSSARY).
type Slot string

const (
	SlotMain  Slot = "main"
	SlotLeft  Slot = "left"
	SlotRight Slot = "right"
)

// MainSlot returns the i-th ordered input slot used by variadic node kinds
// (union), per spec §3's "main[i]" slot model.
func MainSlot(i int) Slot {
	return Slot("main[" + strconv.Itoa(i) + "]")
}

// mainSlotIndex extracts i from a MainSlot(i)-shaped "main[i]" slot; ok is
// false for any other slot (main, left, right).
func mainSlotIndex(s Slot) (int, bool) {
	str := string(s)
	if !strings.HasPrefix(str, "main[") || !strings.HasSuffix(str, "]") {
		return 0, false
	}
	i, err := strconv.Atoi(str[len("main[") : len(str)-1])
	if err != nil {
		return 0, false
	}
	return i, true
}

// LessSlot orders two input slots for deterministic upstream ordering (spec
// §3 slot model): two "main[i]" slots compare by their numeric index, not
// lexicographically, so a ≥10-way variadic input orders main[2] before
// main[10] rather than the other way around; any other pair (main/left/
// right, or a mismatched comparison) falls back to a plain string compare.
func LessSlot(a, b Slot) bool {
	ai, aOK := mainSlotIndex(a)
	bi, bOK := mainSlotIndex(b)
	if aOK && bOK {
		return ai < bi
	}
	return a < b
}

// RunState is a node's position in the execution state machine (spec §4.3).
type RunState string

const (
	RunUnset     RunState = "unset"
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunOK        RunState = "ok"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// NodeResult is the last observed outcome of executing a node (spec §3,
// last_result).
type NodeResult struct {
	Present  bool
	OK       bool
	Rows     int
	Schema   Schema
	Duration int64 // nanoseconds; 0 and Present=false means "no result yet"
	SamplePath string
	Error    string
}

// Node is a FlowGraph vertex: settings, a content hash, a predicted schema,
// and the last execution result (spec §3, §4.3). A Node never holds a
// strong reference to another Node — upstream is always resolved by id
// through the owning Graph (spec "Ownership").
type Node struct {
	id          NodeID
	kind        NodeKind
	settings    NodeSettings
	description string
	posX, posY  float64
	cacheFlag   bool

	contentHash string
	schema      SchemaResult
	runState    RunState
	lastResult  NodeResult
}

// ID returns the node's identifier within its graph.
func (n *Node) ID() NodeID { return n.id }

// Kind returns the node's closed-set kind.
func (n *Node) Kind() NodeKind { return n.kind }

// Settings returns the node's current settings value.
func (n *Node) Settings() NodeSettings { return n.settings }

// Description returns the node's free-text description.
func (n *Node) Description() string { return n.description }

// Position returns the node's opaque canvas coordinates.
func (n *Node) Position() (x, y float64) { return n.posX, n.posY }

// CacheResults reports whether this node asked to be cached in Development
// mode (spec §4.3).
func (n *Node) CacheResults() bool { return n.cacheFlag }

// ContentHash returns the node's stable fingerprint: kind + canonical
// settings + ordered upstream content hashes (spec §3, §4.3). It is
// recomputed by the owning Graph whenever settings or upstream hashes
// change; reading it between graph mutations always returns the
// last-computed value.
func (n *Node) ContentHash() string { return n.contentHash }

// PredictedSchema returns the most recently propagated schema result
// (spec §4.5).
func (n *Node) PredictedSchema() SchemaResult { return n.schema }

// RunState returns the node's position in the execution state machine.
func (n *Node) RunState() RunState { return n.runState }

// LastResult returns the last observed execution outcome.
func (n *Node) LastResult() NodeResult { return n.lastResult }

// Arity returns the input arity implied by this node's settings.
func (n *Node) Arity() Arity { return ArityForSettings(n.settings) }
