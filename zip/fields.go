package zip

import (
	"encoding/binary"
)

// fieldReader walks the little-endian fields of a fixed-layout record. Callers
// check the record length before reading the fixed part.
type fieldReader struct {
	data []byte
	off  int
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{data: data}
}

func (r *fieldReader) uint16() uint16 {
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *fieldReader) uint32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// bytes returns a copy of the next n bytes, so records stay valid after the
// archive buffer goes away.
func (r *fieldReader) bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	v := append([]byte(nil), r.data[r.off:r.off+n]...)
	r.off += n
	return v
}

func (r *fieldReader) string(n int) string {
	v := string(r.data[r.off : r.off+n])
	r.off += n
	return v
}
