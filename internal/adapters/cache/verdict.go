package cache

import (
	"encoding/json"
	"fmt"

	"github.com/mikey/mail-groomer/internal/core"
)

// Store is a verdict cache owning background work or connections
type Store interface {
	core.VerdictCache
	Stop() error
}

func encodeVerdict(v *core.Verdict) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verdict: %w", err)
	}
	return data, nil
}

func decodeVerdict(data []byte) (*core.Verdict, error) {
	var v core.Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return &v, nil
}

// cloneVerdict round-trips through JSON so every backend hands out the same
// shape: numbers as float64, nested values as plain maps and slices.
func cloneVerdict(v *core.Verdict) (*core.Verdict, error) {
	data, err := encodeVerdict(v)
	if err != nil {
		return nil, err
	}
	return decodeVerdict(data)
}
