package inflate

import (
	"sort"
)

const (
	maxCodeLength = 15 // longest code DEFLATE allows
	lengthBits    = 4  // low bits of a lookup entry hold the code length
)

// Code is one entry of a canonical Huffman table: the stream bit pattern of a
// symbol and how many bits it occupies.
type Code struct {
	Code   uint32 // bit-reversed, comparable against bits read from the stream
	Length uint8  // 1..15
	Symbol uint16
}

/*
 * Given the code lengths of a canonical Huffman code, indexed by symbol,
 * construct the table of codes.  A zero length means the symbol is unused and
 * gets no entry.
 *
 * Format notes (RFC 1951 section 3.2.2):
 *
 * - Codes of the same length are consecutive integers, assigned to symbols
 *   in increasing symbol order.
 *
 * - The first code of length L follows the last code of length L-1 with a
 *   zero bit appended:  first[L] = (first[L-1] + count[L-1]) << 1.
 *
 * - Codes are defined most significant bit first, but the stream hands bits
 *   out least significant bit first.  Reversing every code within its own
 *   length lets a decoder compare a code directly with bits read in stream
 *   order.
 *
 * The returned table is sorted by length, ties in symbol order, so a linear
 * scan tries the shortest codes first.
 */
func BuildCodes(lengths []uint8) []Code {
	codes := canonicalCodes(lengths)
	for i := range codes {
		codes[i].Code = reverseBits(codes[i].Code, codes[i].Length)
	}
	return codes
}

// canonicalCodes assigns codes most significant bit first and sorts them. It
// is BuildCodes without the final reversal.
func canonicalCodes(lengths []uint8) []Code {
	var count [maxCodeLength + 1]uint32 // number of codes of each length
	var maxLength uint8
	for _, length := range lengths {
		if length == 0 {
			continue
		}
		count[length]++
		if length > maxLength {
			maxLength = length
		}
	}

	// first code of each length
	var next [maxCodeLength + 1]uint32
	code := uint32(0)
	for bits := uint8(1); bits <= maxLength; bits++ {
		code = (code + count[bits-1]) << 1
		next[bits] = code
	}

	codes := make([]Code, 0, len(lengths))
	for symbol, length := range lengths {
		if length == 0 {
			continue
		}
		codes = append(codes, Code{Code: next[length], Length: length, Symbol: uint16(symbol)})
		next[length]++
	}

	sort.SliceStable(codes, func(i, j int) bool {
		return codes[i].Length < codes[j].Length
	})
	return codes
}

// reverseBits mirrors the low length bits of code.
func reverseBits(code uint32, length uint8) uint32 {
	var reversed uint32
	for ; length > 0; length-- {
		reversed = reversed<<1 | code&1
		code >>= 1
	}
	return reversed
}

/*
 * Decode one symbol by trying every code of the table in order.  The table is
 * sorted shortest first, and a canonical code is prefix free, so the first
 * code whose bits match the upcoming stream bits is the only one that can.
 *
 * Near the end of the input a shorter code may still resolve.  Once the scan
 * reaches a code longer than the bits left, every shorter code has failed and
 * the stream is cut off inside a code.
 */
func DecodeSymbol(table []Code, br *BitReader) (uint16, error) {
	remaining := br.Remaining()
	for _, code := range table {
		if int(code.Length) > remaining {
			return 0, br.fail(ErrInsufficientBits)
		}
		bits, err := br.Peek(uint(code.Length))
		if err != nil {
			return 0, err
		}
		if bits == code.Code {
			br.skip(uint(code.Length))
			return code.Symbol, nil
		}
	}
	return 0, br.fail(ErrNoMatchingCode)
}

/*
 * huffmanTable pairs a code table with a lookup array derived from it, so a
 * symbol resolves with one peek instead of a scan.
 *
 * The lookup array is indexed by the next maxLength stream bits.  A code of
 * length L owns every index whose low L bits equal the code; each slot holds
 * symbol<<4 | length, and zero marks bit patterns no code covers.  Slots are
 * filled in table order and never overwritten, which reproduces the first
 * match rule of DecodeSymbol exactly.
 */
type huffmanTable struct {
	codes     []Code
	lookup    []uint32
	maxLength uint
}

func newHuffmanTable(lengths []uint8) *huffmanTable {
	t := &huffmanTable{codes: BuildCodes(lengths)}
	for _, code := range t.codes {
		if uint(code.Length) > t.maxLength {
			t.maxLength = uint(code.Length)
		}
	}
	if t.maxLength == 0 {
		return t
	}

	t.lookup = make([]uint32, 1<<t.maxLength)
	for _, code := range t.codes {
		entry := uint32(code.Symbol)<<lengthBits | uint32(code.Length)
		for index := code.Code; index < uint32(len(t.lookup)); index += 1 << code.Length {
			if t.lookup[index] == 0 {
				t.lookup[index] = entry
			}
		}
	}
	return t
}

func (t *huffmanTable) decode(br *BitReader) (uint16, error) {
	// near the end of the input fall back to the scan, which copes with
	// fewer than maxLength bits left
	if t.maxLength == 0 || br.Remaining() < int(t.maxLength) {
		return DecodeSymbol(t.codes, br)
	}

	bits, err := br.Peek(t.maxLength)
	if err != nil {
		return 0, err
	}
	entry := t.lookup[bits]
	if entry == 0 {
		return 0, br.fail(ErrNoMatchingCode)
	}
	br.skip(uint(entry & (1<<lengthBits - 1)))
	return uint16(entry >> lengthBits), nil
}
