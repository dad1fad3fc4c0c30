package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A capture file is a plain sequence of CBOR items, one Event each, so a
// file cut short by a crash loses only its last event and can be appended
// to by a later run.

// Limits applied when reading captures. A STOMP frame carries a handful of
// headers; anything far beyond that is a corrupt file, not a frame.
const (
	maxCaptureNesting = 8
	maxCaptureHeaders = 4096
)

var (
	// Canonical key order keeps identical events byte-identical.
	captureEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})

	captureDec = mustDecMode(cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyQuiet,
		IndefLength:      cbor.IndefLengthAllowed,
		MaxNestedLevels:  maxCaptureNesting,
		MaxMapPairs:      maxCaptureHeaders,
		MaxArrayElements: maxCaptureHeaders,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: encoder mode: %v", err))
	}
	return mode
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	mode, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: decoder mode: %v", err))
	}
	return mode
}

// EncodeEvent encodes one capture event.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent decodes exactly one capture event. Trailing bytes are an
// error; use a Reader for whole files.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := captureDec.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode capture event: %w", err)
	}
	return event, nil
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return captureEnc.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}
