package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/i474232898/air-quality-features/internal/features"
)

// decodeRow reads a JSON object into a Row, keeping the key order of the payload.
func decodeRow(raw json.RawMessage) (features.Row, error) {
	var row features.Row

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return row, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return row, fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return row, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return row, fmt.Errorf("unexpected object key %v", keyTok)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return row, fmt.Errorf("field %s: %w", key, err)
		}
		row.Set(key, jsonValue(v))
	}
	return row, nil
}

// jsonValue converts a decoded JSON value into a row Value. Arrays and objects
// are kept as their JSON text.
func jsonValue(v interface{}) features.Value {
	switch t := v.(type) {
	case nil:
		return features.Missing()
	case json.Number:
		return features.Number(t)
	case string:
		return features.Str(t)
	case bool:
		return features.Str(strconv.FormatBool(t))
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return features.Missing()
		}
		return features.Str(string(b))
	}
}
