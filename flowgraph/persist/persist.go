package persist

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// Marshal renders a Document as YAML. JSON documents are also accepted by
// Parse, since YAML 1.2 is a JSON superset — flowgraph does not need a
// second encoder to round-trip a document a caller saved as JSON.
func Marshal(doc *Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("persist: marshaling document: %w", err)
	}
	return data, nil
}

// Parse decodes a canonical document, rejecting it if any required
// top-level or per-node key (spec §6.2) is absent. Unknown keys anywhere
// are tolerated.
func Parse(data []byte) (*Document, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("persist: parsing document: %w", err)
	}
	if err := requireKeys(raw, "document", requiredTopLevelKeys); err != nil {
		return nil, err
	}
	rawNodes, _ := raw["nodes"].([]interface{})
	for i, rn := range rawNodes {
		nm, ok := rn.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("persist: node %d is not a mapping", i)
		}
		if err := requireKeys(nm, fmt.Sprintf("node %d", i), requiredNodeKeys); err != nil {
			return nil, err
		}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("persist: decoding document: %w", err)
	}
	return &doc, nil
}

// Save walks g and produces its canonical document form. Node ids in the
// document are g's current node ids; Load is not required to preserve
// them (spec §4.7's round-trip requirement is content_hash equality
// "modulo ids").
func Save(g *flowgraph.Graph) (*Document, error) {
	settings := g.Settings()
	doc := &Document{
		Version: CurrentVersion,
		GraphID: strconv.Itoa(g.ID()),
		Name:    g.Name(),
		Settings: GraphSettingsDoc{
			ExecutionMode:     string(settings.ExecutionMode),
			ExecutionLocation: string(settings.ExecutionLocation),
			AutoSave:          settings.AutoSave,
			ShowProgress:      settings.ShowProgress,
		},
	}

	for _, n := range g.Nodes() {
		settingsMap, err := encodeSettings(n.Settings())
		if err != nil {
			return nil, fmt.Errorf("persist: node %d: %w", n.ID(), err)
		}
		x, y := n.Position()

		inputRefs := map[string]int{}
		for _, e := range g.UpstreamOf(n.ID()) {
			inputRefs[string(e.ToSlot)] = int(e.From)
		}

		doc.Nodes = append(doc.Nodes, NodeDoc{
			ID:           int(n.ID()),
			Kind:         string(n.Kind()),
			Position:     Position{X: x, Y: y},
			Description:  n.Description(),
			CacheResults: n.CacheResults(),
			InputRefs:    inputRefs,
			Settings:     settingsMap,
		})
	}
	return doc, nil
}

// Load reconstructs a Graph from a parsed document. Nodes are inserted
// first (so a node's declared settings never depend on another node
// having already been added), then edges are wired from each node's
// input_refs — this ordering means a document's node list need not be in
// topological order, only its own node ids need to be locally consistent.
//
// The document's graph_id is a human-assigned identifier and is not
// necessarily numeric; Graph's own id field is only ever used for
// display/logging, so a non-numeric graph_id loads with id 0 rather than
// failing.
func Load(doc *Document) (*flowgraph.Graph, error) {
	graphID, _ := strconv.Atoi(doc.GraphID)

	settings := flowgraph.GraphSettings{
		ExecutionMode:     flowgraph.ExecutionMode(doc.Settings.ExecutionMode),
		ExecutionLocation: flowgraph.ExecutionLocation(doc.Settings.ExecutionLocation),
		AutoSave:          doc.Settings.AutoSave,
		ShowProgress:      doc.Settings.ShowProgress,
	}
	g := flowgraph.New(graphID, doc.Name, settings)

	idMap := make(map[int]flowgraph.NodeID, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		shared := flowgraph.Shared{
			FlowID:       graphID,
			CacheResults: nd.CacheResults,
			Description:  nd.Description,
			PosX:         nd.Position.X,
			PosY:         nd.Position.Y,
		}
		nodeSettings, err := decodeSettings(flowgraph.NodeKind(nd.Kind), shared, nd.Settings)
		if err != nil {
			return nil, fmt.Errorf("persist: node %d: %w", nd.ID, err)
		}
		newID, err := g.AddNode(nodeSettings)
		if err != nil {
			return nil, fmt.Errorf("persist: node %d: %w", nd.ID, err)
		}
		idMap[nd.ID] = newID
	}

	for _, nd := range doc.Nodes {
		to, ok := idMap[nd.ID]
		if !ok {
			continue
		}
		for slot, fromDocID := range nd.InputRefs {
			from, ok := idMap[fromDocID]
			if !ok {
				return nil, fmt.Errorf("persist: node %d: input_ref to unknown node %d", nd.ID, fromDocID)
			}
			if err := g.Connect(from, to, flowgraph.Slot(slot)); err != nil {
				return nil, fmt.Errorf("persist: connecting %d -> %d (slot %s): %w", fromDocID, nd.ID, slot, err)
			}
		}
	}

	return g, nil
}
