package inflate

// BlockType is the BTYPE field of a DEFLATE block header.
type BlockType uint8

const (
	NoCompression       BlockType = 0b00
	FixedHuffmanCodes   BlockType = 0b01
	DynamicHuffmanCodes BlockType = 0b10
	ReservedError       BlockType = 0b11
)

func (t BlockType) String() string {
	switch t {
	case NoCompression:
		return "stored"
	case FixedHuffmanCodes:
		return "fixed"
	case DynamicHuffmanCodes:
		return "dynamic"
	default:
		return "reserved"
	}
}

const (
	endOfBlock     = 256
	maxLengthCode  = 285
	numCodeLengths = 19
)

// order in which the code length code lengths are stored
var codeLengthOrder = [numCodeLengths]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// base and extra bits for length codes 257..285
var lengthBase = [...]uint16{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
	35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
var lengthExtra = [...]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}

// base and extra bits for distance codes 0..29
var distanceBase = [...]uint16{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
	257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
	8193, 12289, 16385, 24577}
var distanceExtra = [...]uint8{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}

// fixed tables never change, so they are built once
var (
	fixedLiteralTable  = newHuffmanTable(fixedLiteralLengths())
	fixedDistanceTable = newHuffmanTable(fixedDistanceLengths())
)

func fixedLiteralLengths() []uint8 {
	lengths := make([]uint8, 288)
	for symbol := range lengths {
		switch {
		case symbol < 144:
			lengths[symbol] = 8
		case symbol < 256:
			lengths[symbol] = 9
		case symbol < 280:
			lengths[symbol] = 7
		default:
			lengths[symbol] = 8
		}
	}
	return lengths
}

func fixedDistanceLengths() []uint8 {
	lengths := make([]uint8, 32)
	for symbol := range lengths {
		lengths[symbol] = 5
	}
	return lengths
}

// IsFinal reads the BFINAL bit of a block header.
func IsFinal(br *BitReader) (bool, error) {
	bit, err := br.Read(1)
	if err != nil {
		return false, err
	}
	return bit == 1, nil
}

// ReadBlockType reads the two BTYPE bits of a block header.
func ReadBlockType(br *BitReader) (BlockType, error) {
	bits, err := br.Read(2)
	if err != nil {
		return ReservedError, err
	}
	return BlockType(bits), nil
}

// DynamicHeader holds the counts that open a dynamic block, along with the
// code lengths of the code length alphabet, indexed by symbol.
type DynamicHeader struct {
	HLIT  int // number of literal/length codes, 257..288
	HDIST int // number of distance codes, 1..32
	HCLEN int // number of code length codes, 4..19

	CodeLengthLengths [numCodeLengths]uint8
}

/*
 * Read the header of a dynamic block, up to and including the code lengths
 * for the code length alphabet.
 *
 * Format notes:
 *
 * - HLIT is five bits plus 257, HDIST five bits plus 1, HCLEN four bits
 *   plus 4.
 *
 * - HCLEN three-bit lengths follow, in the permuted order codeLengthOrder,
 *   which puts the lengths most likely to be zero last so they can be left
 *   out.  Lengths left out are zero.
 */
func ReadDynamicHeader(br *BitReader) (*DynamicHeader, error) {
	hlit, err := br.Read(5)
	if err != nil {
		return nil, err
	}
	hdist, err := br.Read(5)
	if err != nil {
		return nil, err
	}
	hclen, err := br.Read(4)
	if err != nil {
		return nil, err
	}

	h := &DynamicHeader{
		HLIT:  int(hlit) + 257,
		HDIST: int(hdist) + 1,
		HCLEN: int(hclen) + 4,
	}
	for i := 0; i < h.HCLEN; i++ {
		length, err := br.Read(3)
		if err != nil {
			return nil, err
		}
		h.CodeLengthLengths[codeLengthOrder[i]] = uint8(length)
	}
	return h, nil
}

/*
 * Decode count code lengths coded with the code length alphabet.
 *
 * Format notes:
 *
 * - Symbols 0..15 are a literal code length.
 *
 * - 16 repeats the previous length 3..6 times (two extra bits), 17 repeats a
 *   zero length 3..10 times (three extra bits), 18 repeats a zero length
 *   11..138 times (seven extra bits).
 *
 * - The literal/length and distance lengths form one sequence, so a repeat
 *   may run across the boundary between them.  It may not run past count.
 */
func readCodeLengths(table *huffmanTable, br *BitReader, count int) ([]uint8, error) {
	lengths := make([]uint8, 0, count)
	for len(lengths) < count {
		symbol, err := table.decode(br)
		if err != nil {
			return nil, err
		}

		var length uint8
		var repeat uint32
		switch {
		case symbol < 16:
			lengths = append(lengths, uint8(symbol))
			continue
		case symbol == 16:
			if len(lengths) == 0 {
				return nil, br.fail(ErrCodeLengthSymbol)
			}
			length = lengths[len(lengths)-1]
			repeat, err = br.Read(2)
			repeat += 3
		case symbol == 17:
			repeat, err = br.Read(3)
			repeat += 3
		case symbol == 18:
			repeat, err = br.Read(7)
			repeat += 11
		default:
			return nil, br.fail(ErrCodeLengthSymbol)
		}
		if err != nil {
			return nil, err
		}
		if len(lengths)+int(repeat) > count {
			return nil, br.fail(ErrCodeLengthSymbol)
		}
		for ; repeat > 0; repeat-- {
			lengths = append(lengths, length)
		}
	}
	return lengths, nil
}

// decompressor is the state of one decode: the input cursor and the output,
// which doubles as the sliding window.
type decompressor struct {
	br  *BitReader
	out []byte
}

// Decompress decodes a complete raw DEFLATE stream, with no zlib or gzip
// wrapper, and returns the decoded bytes.
func Decompress(data []byte) ([]byte, error) {
	out, _, err := DecompressPrefix(data)
	return out, err
}

// DecompressPrefix decodes the DEFLATE stream at the start of data and also
// reports how many input bytes the stream occupied, counting a partly used
// final byte.
func DecompressPrefix(data []byte) ([]byte, int, error) {
	d := &decompressor{
		br:  NewBitReader(data),
		out: make([]byte, 0, len(data)*2),
	}
	if err := d.run(); err != nil {
		return nil, 0, err
	}
	return d.out, (d.br.BitsConsumed() + 7) >> 3, nil
}

// run decodes blocks until one with BFINAL set has been decoded.
func (d *decompressor) run() error {
	for {
		final, err := IsFinal(d.br)
		if err != nil {
			return err
		}
		blockType, err := ReadBlockType(d.br)
		if err != nil {
			return err
		}

		switch blockType {
		case NoCompression:
			err = d.storedBlock()
		case FixedHuffmanCodes:
			err = d.huffmanBlock(fixedLiteralTable, fixedDistanceTable)
		case DynamicHuffmanCodes:
			err = d.dynamicBlock()
		default:
			err = d.br.fail(ErrReservedBlockType)
		}
		if err != nil {
			return err
		}

		if final {
			return nil
		}
	}
}

/*
 * Process a stored block.
 *
 * Format notes:
 *
 * - After the block header, skip to a byte boundary.
 *
 * - LEN and NLEN follow, sixteen bits each.  NLEN must be the ones
 *   complement of LEN.
 *
 * - LEN raw bytes follow, copied to the output unchanged.
 */
func (d *decompressor) storedBlock() error {
	d.br.AlignToByte()

	length, err := d.br.Read(16)
	if err != nil {
		return err
	}
	nlength, err := d.br.Read(16)
	if err != nil {
		return err
	}
	if uint16(nlength) != ^uint16(length) {
		return d.br.fail(ErrStoredLength)
	}

	raw, err := d.br.Bytes(int(length))
	if err != nil {
		return err
	}
	d.out = append(d.out, raw...)
	return nil
}

// dynamicBlock reads the code tables of a dynamic block and decodes the
// block with them.
func (d *decompressor) dynamicBlock() error {
	header, err := ReadDynamicHeader(d.br)
	if err != nil {
		return err
	}

	codeLengthTable := newHuffmanTable(header.CodeLengthLengths[:])
	lengths, err := readCodeLengths(codeLengthTable, d.br, header.HLIT+header.HDIST)
	if err != nil {
		return err
	}

	literalTable := newHuffmanTable(lengths[:header.HLIT])
	distanceTable := newHuffmanTable(lengths[header.HLIT:])
	return d.huffmanBlock(literalTable, distanceTable)
}

/*
 * Decode literals and length/distance pairs until the end-of-block code.
 *
 * Format notes:
 *
 * - Literal/length symbols 0..255 are literal bytes, 256 ends the block, and
 *   257..285 are lengths.  Each length symbol has a base length and a number
 *   of extra bits added to it.
 *
 * - A length is always followed by a distance symbol from the distance
 *   table, likewise turned into a distance with a base and extra bits.
 *
 * - The fixed code has symbols 286, 287 and distance symbols 30, 31 that
 *   never occur in a valid stream.
 */
func (d *decompressor) huffmanBlock(literals, distances *huffmanTable) error {
	for {
		symbol, err := literals.decode(d.br)
		if err != nil {
			return err
		}

		switch {
		case symbol < endOfBlock:
			d.out = append(d.out, byte(symbol))
		case symbol == endOfBlock:
			return nil
		case symbol <= maxLengthCode:
			length, distance, err := d.lengthAndDistance(symbol, distances)
			if err != nil {
				return err
			}
			if d.out, err = Duplicate(d.out, length, distance); err != nil {
				return d.br.fail(err)
			}
		default:
			return d.br.fail(ErrNonCompliantSymbol)
		}
	}
}

func (d *decompressor) lengthAndDistance(symbol uint16, distances *huffmanTable) (int, int, error) {
	index := symbol - endOfBlock - 1
	extra, err := d.br.Read(uint(lengthExtra[index]))
	if err != nil {
		return 0, 0, err
	}
	length := int(lengthBase[index]) + int(extra)

	symbol, err = distances.decode(d.br)
	if err != nil {
		return 0, 0, err
	}
	if int(symbol) >= len(distanceBase) {
		return 0, 0, d.br.fail(ErrNonCompliantSymbol)
	}
	extra, err = d.br.Read(uint(distanceExtra[symbol]))
	if err != nil {
		return 0, 0, err
	}
	distance := int(distanceBase[symbol]) + int(extra)

	return length, distance, nil
}
