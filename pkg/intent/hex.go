package intent

import (
	"encoding/hex"
	"fmt"
)

func decodeHexHash(h string) ([]byte, error) {
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("invalid hex hash: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("hash must decode to 32 bytes, got %d", len(b))
	}
	return b, nil
}

func decodeHexSig(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	return b, nil
}
