// Package codec encodes bridge payloads as CBOR.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same message always
// produces the same bytes.
var encMode cbor.EncMode

// decMode ignores unknown fields so older peers can talk to newer ones.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 4096,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an encoded CBOR value whose decoding is deferred.
type RawMessage = cbor.RawMessage
