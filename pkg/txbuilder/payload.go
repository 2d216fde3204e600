package txbuilder

import (
	"encoding/json"
	"fmt"

	"github.com/certen/anchorsvc/pkg/canonical"
)

// marshalCanonicalPayload produces the bit-exact canonical bytes for the
// on-ledger payload: object keys sorted lexicographically ("hash" < "p" < "v"),
// no insignificant whitespace.
func marshalCanonicalPayload(p payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	canonicalBytes, err := canonical.Canonicalize(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return canonicalBytes, nil
}
