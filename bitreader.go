package inflate

/*
 * BitReader is a positional view over a byte buffer that hands out bits in
 * the order DEFLATE stores them.
 *
 * Format notes:
 *
 * - Bits are stored in bytes from the least significant bit to the most
 *   significant bit.  Bit 0 of byte 0 is the first bit of the stream, and a
 *   multi-bit field read from the stream has its first bit in bit 0 of the
 *   returned value.
 *
 * - Fields may straddle byte boundaries.  At most 32 bits are returned at
 *   once, which never needs more than five input bytes.
 *
 * - The buffer is borrowed, never copied.  The reader only moves its own
 *   cursor, so several readers may share one buffer.
 */
type BitReader struct {
	data []byte // input, owned by the caller
	pos  int    // bit offset of the next unread bit
}

const maxPeekBits = 32

// NewBitReader returns a reader positioned at the first bit of data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// BitsConsumed reports how many bits have been read so far.
func (br *BitReader) BitsConsumed() int {
	return br.pos
}

// Remaining reports how many bits are left before the end of the buffer.
func (br *BitReader) Remaining() int {
	return len(br.data)*8 - br.pos
}

// Peek returns the next n bits without advancing. Peek(0) returns 0.
func (br *BitReader) Peek(n uint) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if n > maxPeekBits {
		return 0, br.fail(ErrBitCount)
	}
	if br.Remaining() < int(n) {
		return 0, br.fail(ErrInsufficientBits)
	}

	index := br.pos >> 3
	shift := uint(br.pos & 7)
	need := int((shift + n + 7) >> 3) // bytes touched by this field

	// load the touched bytes low byte first, then drop the bits already read
	var val uint64
	for i := 0; i < need; i++ {
		val |= uint64(br.data[index+i]) << (8 * uint(i))
	}
	val >>= shift

	return uint32(val & (1<<n - 1)), nil
}

// Read returns the next n bits and advances past them. On error the position
// is left unchanged.
func (br *BitReader) Read(n uint) (uint32, error) {
	val, err := br.Peek(n)
	if err != nil {
		return 0, err
	}
	br.pos += int(n)
	return val, nil
}

// AlignToByte skips to the next byte boundary, if not already on one.
func (br *BitReader) AlignToByte() {
	br.pos = (br.pos + 7) &^ 7
}

// Bytes returns the next n whole bytes and advances past them. The reader
// must be byte aligned. The returned slice aliases the input buffer.
func (br *BitReader) Bytes(n int) ([]byte, error) {
	if br.pos&7 != 0 {
		return nil, br.fail(ErrUnaligned)
	}
	if n < 0 || br.Remaining() < n*8 {
		return nil, br.fail(ErrInsufficientBits)
	}
	start := br.pos >> 3
	br.pos += n * 8
	return br.data[start : start+n], nil
}

// skip advances past n bits that a previous Peek already proved present.
func (br *BitReader) skip(n uint) {
	br.pos += int(n)
}

func (br *BitReader) fail(err error) error {
	return &DecodeError{BitOffset: br.pos, Err: err}
}
