package inflate

import (
	"github.com/pkg/errors"
)

// maxDistance is the size of the DEFLATE sliding window.
const maxDistance = 32768

/*
 * Append length bytes copied from distance bytes back in out.  The output
 * itself is the sliding window, so no separate history is kept.
 *
 * Format notes:
 *
 * - Distances pointing before the beginning of the output are not permitted.
 *
 * - Overlapped copies, where the length is greater than the distance, are
 *   allowed and common.  A distance of one and a length of 258 repeats the
 *   last byte 258 times; a distance of four and a length of twelve repeats
 *   the last four bytes three times.  Copying one byte at a time, each byte
 *   appended before the next is read, implements this correctly.
 */
func Duplicate(out []byte, length, distance int) ([]byte, error) {
	if distance <= 0 || distance > maxDistance || distance > len(out) {
		return out, errors.Wrapf(ErrInvalidBackReference,
			"distance %d with %d bytes of output", distance, len(out))
	}

	from := len(out) - distance
	for i := 0; i < length; i++ {
		out = append(out, out[from+i])
	}
	return out, nil
}
