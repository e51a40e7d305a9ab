// Package util holds the small shared helpers: canonical JSON encoding for
// snapshot stability, content hashing and ID generation.
package util

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON encodes value as indented JSON with object keys sorted at
// every depth, so equal values always serialize to equal bytes. Findings
// snapshots and content hashes rely on this. The round trip through any
// turns every object into a map, which encoding/json emits in key order.
func CanonicalJSON(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(decoded); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
