package display

import (
	"encoding/json"
)

// MarshalJSON pretty-prints v with two-space indentation
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
