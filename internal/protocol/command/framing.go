package command

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Record marking, as used by ONC RPC over TCP (RFC 5531 Section 11):
// every fragment is prefixed with a 4-byte big-endian header whose top bit
// flags the last fragment of a message and whose low 31 bits carry the
// fragment length.
const (
	lastFragmentFlag = 0x80000000
	fragmentLenMask  = 0x7FFFFFFF

	// DefaultMaxMessageSize caps a reassembled message.
	DefaultMaxMessageSize = 1 << 20
)

// ErrFrameTooLarge is returned when a message exceeds the configured limit.
var ErrFrameTooLarge = errors.New("frame too large")

type fragmentHeader struct {
	IsLast bool
	Length uint32
}

func readFragmentHeader(r io.Reader) (fragmentHeader, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fragmentHeader{}, err
	}

	header := binary.BigEndian.Uint32(buf[:])
	return fragmentHeader{
		IsLast: header&lastFragmentFlag != 0,
		Length: header & fragmentLenMask,
	}, nil
}

// ReadFrame reads one record-marked message from r, reassembling fragments.
//
// Returns io.EOF only when r is closed cleanly before the first header byte.
// A stream closed mid-message yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}

	var message []byte
	first := true
	for {
		header, err := readFragmentHeader(r)
		if err != nil {
			if !first && err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		first = false

		if uint64(len(message))+uint64(header.Length) > uint64(maxSize) {
			return nil, fmt.Errorf("%w: %d bytes exceeds maximum %d",
				ErrFrameTooLarge, uint64(len(message))+uint64(header.Length), maxSize)
		}

		start := len(message)
		message = append(message, make([]byte, header.Length)...)
		if _, err := io.ReadFull(r, message[start:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read fragment: %w", err)
		}

		if header.IsLast {
			return message, nil
		}
	}
}

// AppendFrame appends payload to dst as a single last fragment.
func AppendFrame(dst, payload []byte) []byte {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], lastFragmentFlag|uint32(len(payload))&fragmentLenMask)
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// WriteFrame writes payload to w as a single last fragment.
//
// Header and payload go out in one Write call so a response is never
// interleaved with anything else written to the same connection.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > fragmentLenMask {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	_, err := w.Write(AppendFrame(make([]byte, 0, 4+len(payload)), payload))
	return err
}
