// Package persist implements the canonical document format a FlowGraph is
// saved to and loaded from (spec §4.7, §6.2), plus code export to
// equivalent fluent-builder script text. The document is plain data —
// map[string]interface{} settings payloads decoded via gopkg.in/yaml.v3,
// the same generic-map-then-typed-struct idiom the pack's own YAML graph
// loader uses for its per-unit parameters
// (ahrav-go-gavel/internal/application/graph_loader.go's
// `config.Parameters.Decode(&params)`).
package persist

import "fmt"

// CurrentVersion is written by Save. Load neither checks nor records a
// document's version — there is only one document shape so far.
const CurrentVersion = "1.0.0"

// Document is the versioned, human-readable serialization of a Graph
// (spec §6.2). Required top-level keys: version, graph_id, name, settings,
// nodes. Unknown top-level keys are tolerated; a missing required key is
// rejected with a clear error (spec §6.2).
type Document struct {
	Version  string           `yaml:"version" json:"version"`
	GraphID  string           `yaml:"graph_id" json:"graph_id"`
	Name     string           `yaml:"name" json:"name"`
	Settings GraphSettingsDoc `yaml:"settings" json:"settings"`
	Nodes    []NodeDoc        `yaml:"nodes" json:"nodes"`
}

// GraphSettingsDoc is the wire form of flowgraph.GraphSettings.
type GraphSettingsDoc struct {
	ExecutionMode     string `yaml:"execution_mode" json:"execution_mode"`
	ExecutionLocation string `yaml:"execution_location" json:"execution_location"`
	AutoSave          bool   `yaml:"auto_save" json:"auto_save"`
	ShowProgress      bool   `yaml:"show_progress" json:"show_progress"`
}

// Position is a node's opaque canvas coordinates.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// NodeDoc is one node's serialized form (spec §6.2: "id, kind, pos,
// description, settings"). Edges are not stored separately: each node
// carries its own input_refs (slot -> source node id), and the graph's
// edge set is recovered from those during Load (spec §4.7 "edges may be
// derived from per-node input references").
type NodeDoc struct {
	ID           int                    `yaml:"id" json:"id"`
	Kind         string                 `yaml:"kind" json:"kind"`
	Position     Position               `yaml:"pos" json:"pos"`
	Description  string                 `yaml:"description" json:"description"`
	CacheResults bool                   `yaml:"cache_results,omitempty" json:"cache_results,omitempty"`
	InputRefs    map[string]int         `yaml:"input_refs,omitempty" json:"input_refs,omitempty"`
	Settings     map[string]interface{} `yaml:"settings" json:"settings"`
}

// requiredTopLevelKeys and requiredNodeKeys enumerate the keys Load treats
// as mandatory (spec §6.2). Everything else is optional and tolerated.
var requiredTopLevelKeys = []string{"version", "graph_id", "name", "settings", "nodes"}
var requiredNodeKeys = []string{"id", "kind", "pos", "description", "settings"}

// MissingKeyError reports an absent required key at load time.
type MissingKeyError struct {
	Context string // "document" or "node <id>"
	Key     string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("persist: %s is missing required key %q", e.Context, e.Key)
}

func requireKeys(raw map[string]interface{}, context string, keys []string) error {
	for _, k := range keys {
		if _, ok := raw[k]; !ok {
			return &MissingKeyError{Context: context, Key: k}
		}
	}
	return nil
}
