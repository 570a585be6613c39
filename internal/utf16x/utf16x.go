/*
package utf16x decodes the UCS-2 code units stored in FAT long filename slots.
*/
package utf16x

import "encoding/binary"

const (
	terminator = 0x0000
	maxASCII   = 0x7F
)

// ToASCII writes the code units of srcUTF16 that are in the ASCII range into
// dst, dropping any unit above 0x7F. Decoding stops at the first NUL unit,
// in which case terminated is true. Units that do not fit in dst are dropped.
// A trailing odd byte in srcUTF16 is ignored.
func ToASCII(dst, srcUTF16 []byte, order16 binary.ByteOrder) (n int, terminated bool) {
	for i := 0; i+1 < len(srcUTF16); i += 2 {
		u := order16.Uint16(srcUTF16[i:])
		switch {
		case u == terminator:
			return n, true
		case u > maxASCII:
			continue
		case n < len(dst):
			dst[n] = byte(u)
			n++
		}
	}
	return n, false
}
