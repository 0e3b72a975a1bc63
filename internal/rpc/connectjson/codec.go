// Package connectjson provides a plain-JSON codec so Connect streams can
// carry the generation messages without protobuf definitions.
package connectjson

import (
	"encoding/json"

	"github.com/bufbuild/connect-go"
)

// Codec marshals the generate request/event structs as JSON frames.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name reports the codec identity used in content-type negotiation.
func (Codec) Name() string { return "json" }

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
