package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeStrict unmarshals raw into v, rejecting unknown fields. Entity
// transforms use it so unexpected server payload fields fail at the boundary
// instead of propagating into the local store.
func DecodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode server record: %w", err)
	}
	return nil
}
