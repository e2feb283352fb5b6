package storage

import (
	"encoding/json"
	"fmt"

	"github.com/agoralabs/agora/internal/types"
)

// Reserved update keys that address dedicated participant columns rather
// than the data payload.
const (
	UpdateKeyAuthToken = "auth_token"
	UpdateKeyEmbedding = "embedding"
)

// ApplyParticipantUpdates merges an update map into a participant row in
// place. Reserved keys set their columns; a nil value clears them. Every
// other key is merged into the metadata payload, where a nil value removes
// the key. Backends call this inside their read-modify-write transaction
// so merge semantics cannot drift between dialects.
func ApplyParticipantUpdates(p *types.Participant, updates map[string]any) error {
	for k, v := range updates {
		switch k {
		case UpdateKeyAuthToken:
			if v == nil {
				p.AuthToken = ""
				continue
			}
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("update %s: expected string, got %T", k, v)
			}
			p.AuthToken = s
		case UpdateKeyEmbedding:
			if v == nil {
				p.Embedding = nil
				continue
			}
			b, err := coerceEmbedding(v)
			if err != nil {
				return fmt.Errorf("update %s: %w", k, err)
			}
			p.Embedding = b
		default:
			if v == nil {
				delete(p.Metadata, k)
				continue
			}
			if p.Metadata == nil {
				p.Metadata = map[string]any{}
			}
			p.Metadata[k] = v
		}
	}
	return nil
}

// coerceEmbedding accepts the shapes an embedding arrives in: raw bytes
// from Go callers, or a JSON number array when the update came over HTTP.
func coerceEmbedding(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return raw, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", v)
	}
}
