package humastar

import (
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
)

// SignalsInput receives the signals Datastar posts as the JSON request body.
type SignalsInput struct {
	RawBody []byte
}

// DecodeSignals unmarshals the posted signals into T. A malformed body is a
// 400; signals T does not declare are ignored.
func DecodeSignals[T any](in *SignalsInput) (T, error) {
	var out T
	if len(in.RawBody) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(in.RawBody, &out); err != nil {
		return out, huma.Error400BadRequest("invalid signals: " + err.Error())
	}
	return out, nil
}
