package hpack

import "github.com/WhileEndless/go-rawserver/pkg/errors"

// maxContinuationBytes bounds the number of continuation octets the integer
// decoder will consume per RFC 7541 §5.1 before giving up; this, together
// with maxIntValue, is what keeps a maliciously large varint from spinning
// forever or overflowing.
const maxContinuationBytes = 5

// maxIntValue is the largest integer value the decoder accepts, matching
// the header-block size bounds a real connection would enforce anyway.
const maxIntValue = (1 << 31) - 1

// appendInt encodes n using an N-bit prefix integer representation (RFC
// 7541 §5.1) and appends it to dst. firstByteBits carries any flag bits
// that occupy the high (8-prefixBits) bits of the first octet; its low
// prefixBits bits must already be zero.
func appendInt(dst []byte, prefixBits uint, firstByteBits byte, n uint64) []byte {
	max := uint64(1)<<prefixBits - 1
	if n < max {
		return append(dst, firstByteBits|byte(n))
	}
	dst = append(dst, firstByteBits|byte(max))
	n -= max
	for n >= 128 {
		dst = append(dst, byte(n%128)+128)
		n /= 128
	}
	return append(dst, byte(n))
}

// decodeInt decodes an N-bit prefix integer from the start of data, which
// must include the first (partially prefix) octet. It returns the decoded
// value and the number of octets consumed.
func decodeInt(data []byte, prefixBits uint) (value uint64, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, errors.NewCompressionError("decode_int", "empty integer", nil)
	}
	max := uint64(1)<<prefixBits - 1
	value = uint64(data[0]) & max
	if value < max {
		return value, 1, nil
	}

	shift := uint(0)
	i := 1
	for {
		if i-1 >= maxContinuationBytes {
			return 0, 0, errors.NewCompressionError("decode_int", "too many continuation bytes", nil)
		}
		if i >= len(data) {
			return 0, 0, errors.NewCompressionError("decode_int", "truncated integer", nil)
		}
		b := data[i]
		value += uint64(b&0x7f) << shift
		shift += 7
		i++
		if value > maxIntValue {
			return 0, 0, errors.NewCompressionError("decode_int", "integer exceeds maximum value", nil)
		}
		if b&0x80 == 0 {
			break
		}
	}
	return value, i, nil
}
