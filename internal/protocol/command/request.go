// Package command implements the wire format of the command port: the
// Request message, its encodings and the record-mark framing that delimits
// messages on the TCP stream.
//
// Two encodings are supported:
//   - protobuf (default): message Request { Opcode op = 1; bytes subject = 2; }
//   - xdr: [op:int32][subject:opaque<>] per RFC 4506
//
// Both decoders are pure functions of their input and never partially
// succeed: any malformed byte sequence yields a *DecodeError.
package command

import (
	"fmt"
	"unicode/utf8"
)

// Request is a single decoded command.
type Request struct {
	// Operation selects the lifecycle action.
	Operation Opcode

	// Subject names the filesystem entity (fsid). It doubles as the store
	// key and must be valid UTF-8 to be actionable.
	Subject []byte
}

// SubjectString returns the subject as a string if it is valid UTF-8.
//
// When it is not, the returned error describes the offset of the first
// invalid byte.
func (r *Request) SubjectString() (string, error) {
	if utf8.Valid(r.Subject) {
		return string(r.Subject), nil
	}
	return "", invalidUTF8Error(r.Subject)
}

func invalidUTF8Error(b []byte) error {
	for i := 0; i < len(b); {
		rn, size := utf8.DecodeRune(b[i:])
		if rn == utf8.RuneError && size <= 1 {
			return fmt.Errorf("invalid utf-8 sequence of %d bytes from index %d", max(size, 1), i)
		}
		i += size
	}
	return fmt.Errorf("invalid utf-8 sequence")
}

// Codec converts between Requests and their wire encoding.
type Codec interface {
	// Name identifies the encoding ("protobuf", "xdr").
	Name() string

	// Decode parses exactly one Request from data.
	Decode(data []byte) (*Request, error)

	// Encode serializes req.
	Encode(req *Request) ([]byte, error)
}

// DecodeError reports a malformed request.
type DecodeError struct {
	Codec  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid %s request at offset %d: %v", e.Codec, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "protobuf":
		return ProtobufCodec{}, nil
	case "xdr":
		return XDRCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
