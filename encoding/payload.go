package encoding

import "fmt"

// DefaultCompressThreshold is the encoded size above which payloads are compressed.
const DefaultCompressThreshold = 1024

// EncodePayload marshals v and compresses the result when it is larger than
// threshold. A threshold <= 0 disables compression.
func EncodePayload(v any, threshold int) (data []byte, compressed bool, err error) {
	data, err = Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}
	if threshold <= 0 || len(data) <= threshold {
		return data, false, nil
	}

	packed, err := Compress(data)
	if err != nil {
		return nil, false, err
	}
	if len(packed) >= len(data) {
		return data, false, nil
	}
	return packed, true, nil
}

// DecodePayload reverses EncodePayload into v.
func DecodePayload(data []byte, compressed bool, v any) error {
	if compressed {
		raw, err := Decompress(data)
		if err != nil {
			return err
		}
		data = raw
	}
	if err := Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
