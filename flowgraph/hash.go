package flowgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// computeContentHash derives the deterministic fingerprint described in
// spec §3/§4.3: kind + canonical(settings) + ordered upstream hashes.
//
// encoding/json is used for canonicalization because Go already guarantees
// deterministic output for it (struct fields in declaration order, map keys
// sorted) — no third-party canonical-JSON library in the pack does better
// for this shape of data, and the hash only needs to be stable, not
// cryptographically meaningful, so crypto/sha256 (used the same way by
// trpc-agent-go's own hash_generator tool) is the natural fit over a
// non-cryptographic hash package the pack does not otherwise use directly.
func computeContentHash(kind NodeKind, settings NodeSettings, upstreamHashes []string) (string, error) {
	payload := struct {
		Kind     NodeKind
		Settings interface{}
		Upstream []string
	}{
		Kind:     kind,
		Settings: settings.canonical(),
		Upstream: upstreamHashes,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
