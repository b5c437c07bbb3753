package store

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/roach88/quorum/internal/ir"
)

// marshalIdentities converts an identity set to canonical JSON TEXT.
// Order is preserved; it is the approval or vote order.
func marshalIdentities(ids []ir.Identity) (string, error) {
	data, err := ir.MarshalCanonical(ids)
	if err != nil {
		return "", fmt.Errorf("marshal identities: %w", err)
	}
	return string(data), nil
}

// unmarshalIdentities parses an identity set. Empty text is an empty set.
func unmarshalIdentities(data string) ([]ir.Identity, error) {
	if data == "" || data == "[]" {
		return []ir.Identity{}, nil
	}
	var ids []ir.Identity
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal identities: %w", err)
	}
	return ids, nil
}

// toUnixNano stores a timestamp as unix nanoseconds; the zero time is 0.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromUnixNano is the inverse of toUnixNano.
func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// toInt64 guards the INTEGER column range.
func toInt64(field string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%s %d exceeds storable range", field, v)
	}
	return int64(v), nil
}
