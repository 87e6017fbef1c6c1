package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single inbound frame; anything larger is treated as
// a malformed frame rather than an attempt to exhaust memory.
const maxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by ReadFrame when the declared length exceeds
// maxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("protocol: frame exceeds %d bytes", maxFrameSize)

// EncodeFrame marshals v to JSON and prefixes it with a 32-bit big-endian
// length header, ready to hand to a writer. v must already carry its own
// "type" field (every packet variant in this package does).
func EncodeFrame(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// ReadFrame reads one length-prefixed frame from r and returns the raw JSON
// body. A short read on the length header or the body is reported as io.EOF
// so callers can distinguish "connection closed" from a malformed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return body, nil
}

// typeTag is used only to sniff the "type" discriminator out of an inbound
// frame before unmarshalling into the concrete variant.
type typeTag struct {
	Type Type `json:"type"`
}

// DecodePacket inspects body's "type" field and unmarshals it into the
// matching variant, returned as `any`. An unrecognised or missing type, or a
// body that is not a JSON object, is reported as an error so the coordinator
// can log and continue rather than treat it as fatal.
func DecodePacket(body []byte) (any, error) {
	var tag typeTag
	if err := json.Unmarshal(body, &tag); err != nil {
		return nil, fmt.Errorf("protocol: not a JSON object: %w", err)
	}
	if tag.Type == "" {
		return nil, fmt.Errorf("protocol: missing \"type\" field")
	}

	var err error
	switch tag.Type {
	case TypeRegisterReq:
		var p RegisterReq
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeLoginReq:
		var p LoginReq
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeFetchReq:
		var p FetchReq
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeGotoReq:
		var p GotoReq
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeMessage:
		var p Message
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeExit:
		var p Exit
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeConnected:
		var p Connected
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeRegisterRes:
		var p RegisterRes
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeLoginRes:
		var p LoginRes
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeFetchRes:
		var p FetchRes
		err = json.Unmarshal(body, &p)
		return p, err
	case TypeGotoRes:
		var p GotoRes
		err = json.Unmarshal(body, &p)
		return p, err
	default:
		return nil, fmt.Errorf("protocol: unknown packet type %q", tag.Type)
	}
}
