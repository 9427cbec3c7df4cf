package keystore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// entry is the stored form of a keystore value. CBOR keeps the
// encoding compact and stable across versions.
//
// Format:
//   [version:1] followed by the CBOR document
type entry struct {
	Version int    `cbor:"v"`
	Value   string `cbor:"val"`
}

const entryVersion = 1

func encodeEntry(value string) ([]byte, error) {
	return cbor.Marshal(entry{Version: entryVersion, Value: value})
}

func decodeEntry(data []byte) (string, error) {
	var e entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("decode keystore entry: %w", err)
	}
	if e.Version != entryVersion {
		return "", fmt.Errorf("unsupported keystore entry version %d", e.Version)
	}
	return e.Value, nil
}
