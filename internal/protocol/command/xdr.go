package command

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// maxSubjectLength bounds the opaque subject in XDR requests.
const maxSubjectLength = 4096

// xdrRequest is the XDR layout of a Request:
//
//	struct request {
//	    int    op;
//	    opaque subject<>;
//	};
type xdrRequest struct {
	Op      int32
	Subject []byte
}

// XDRCodec encodes Requests using XDR (RFC 4506).
type XDRCodec struct{}

func (XDRCodec) Name() string { return "xdr" }

func (c XDRCodec) Decode(data []byte) (*Request, error) {
	// Reject an oversized declared length before anything is allocated.
	if len(data) >= 8 {
		if declared := binary.BigEndian.Uint32(data[4:8]); declared > maxSubjectLength {
			return nil, &DecodeError{Codec: c.Name(), Offset: 4,
				Err: fmt.Errorf("subject length %d exceeds maximum %d", declared, maxSubjectLength)}
		}
	}

	reader := bytes.NewReader(data)

	var wire xdrRequest
	n, err := xdr.UnmarshalLimited(reader, &wire, maxSubjectLength)
	if err != nil {
		return nil, &DecodeError{Codec: c.Name(), Offset: n, Err: err}
	}
	if reader.Len() != 0 {
		return nil, &DecodeError{Codec: c.Name(), Offset: n,
			Err: fmt.Errorf("%d trailing bytes", reader.Len())}
	}

	return &Request{Operation: Opcode(wire.Op), Subject: wire.Subject}, nil
}

func (XDRCodec) Encode(req *Request) ([]byte, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	var buf bytes.Buffer
	wire := xdrRequest{Op: int32(req.Operation), Subject: req.Subject}
	if _, err := xdr.Marshal(&buf, &wire); err != nil {
		return nil, fmt.Errorf("marshal xdr request: %w", err)
	}
	return buf.Bytes(), nil
}
