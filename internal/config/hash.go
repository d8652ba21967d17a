package config

import (
	"encoding/json"
	"hash/fnv"
)

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// HashRaw hashes a raw JSON blob after re-encoding it, so whitespace and key
// order do not count as changes.
func HashRaw(raw json.RawMessage) uint64 {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return hashBytes(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return hashBytes(raw)
	}
	return hashBytes(b)
}
