/*
Package inflate implements decoding of DEFLATE compressed data, as described
in RFC 1951, from a fully materialized input buffer.

The implementation decodes the whole stream up front. For example, to
decompress a raw DEFLATE buffer:

	out, err := inflate.Decompress(data)

or to read compressed data from an io.Reader:

	r, err := inflate.NewReader(&b)
	io.Copy(os.Stdout, r)
	r.Close()
*/
package inflate

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrInsufficientBits is returned when a read needs more bits than the input holds.
	ErrInsufficientBits = errors.New("inflate: not enough bits available")
	// ErrBitCount is returned when more than 32 bits are requested at once.
	ErrBitCount = errors.New("inflate: bit count out of range")
	// ErrUnaligned is returned when raw bytes are requested off a byte boundary.
	ErrUnaligned = errors.New("inflate: reader not byte aligned")
	// ErrReservedBlockType is returned for a block header with BTYPE 11.
	ErrReservedBlockType = errors.New("inflate: reserved block type")
	// ErrStoredLength is returned when LEN and NLEN of a stored block do not match.
	ErrStoredLength = errors.New("inflate: LEN and NLEN do not match")
	// ErrCodeLengthSymbol is returned for a code length sequence that cannot be decoded.
	ErrCodeLengthSymbol = errors.New("inflate: unexpected code length symbol")
	// ErrNoMatchingCode is returned when the upcoming bits match no Huffman code.
	ErrNoMatchingCode = errors.New("inflate: no matching code")
	// ErrInvalidBackReference is returned for a distance reaching before the start of output.
	ErrInvalidBackReference = errors.New("inflate: distance is too far back")
	// ErrNonCompliantSymbol is returned for a literal/length or distance symbol DEFLATE does not define.
	ErrNonCompliantSymbol = errors.New("inflate: non-compliant symbol")
)

// DecodeError reports why a decode stopped and where in the input it was.
type DecodeError struct {
	BitOffset int // position of the reader when the failure was detected
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (at bit %d, byte %d)", e.Err, e.BitOffset, e.BitOffset/8)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type reader struct {
	data      []byte
	readIndex int64
}

// NewReader creates a new ReadCloser.
// The compressed data is read from r and decoded completely before NewReader
// returns; reads from the returned ReadCloser serve the decoded bytes.
// It is the caller's responsibility to call Close on the ReadCloser when done.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read compressed data")
	}
	data, err := Decompress(compressed)
	if err != nil {
		return nil, err
	}
	return &reader{data: data}, nil
}

func (r *reader) Read(p []byte) (n int, err error) {
	if r.readIndex >= int64(len(r.data)) {
		err = io.EOF
		return
	}
	n = copy(p, r.data[r.readIndex:])
	r.readIndex += int64(n)
	return
}

func (r *reader) Close() error {
	return nil
}
