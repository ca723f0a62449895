package hpack

import "github.com/WhileEndless/go-rawserver/pkg/errors"

// appendString encodes s as an HPACK string literal (RFC 7541 §5.2): a
// 7-bit prefix integer length with the Huffman flag as the high bit,
// followed by the literal or Huffman-coded octets. Huffman is used only
// when it is strictly shorter, per §4.2.3.
func appendString(dst []byte, s string) []byte {
	if hl := huffmanEncodedLen(s); hl < len(s) {
		dst = appendInt(dst, 7, 0x80, uint64(hl))
		return appendHuffman(dst, s)
	}
	dst = appendInt(dst, 7, 0x00, uint64(len(s)))
	return append(dst, s...)
}

// decodeString decodes an HPACK string literal from the start of data,
// returning the decoded value and the number of octets consumed. The
// encoded length is bounded by the remaining data length, so this never
// allocates more than is actually present on the wire.
func decodeString(data []byte) (string, int, error) {
	if len(data) == 0 {
		return "", 0, errors.NewCompressionError("decode_string", "truncated string literal", nil)
	}
	huff := data[0]&0x80 != 0

	length, n, err := decodeInt(data, 7)
	if err != nil {
		return "", 0, err
	}

	total := n + int(length)
	if total < n || total > len(data) {
		return "", 0, errors.NewCompressionError("decode_string", "string literal overruns header block", nil)
	}

	raw := data[n:total]
	if !huff {
		return string(raw), total, nil
	}
	s, err := huffmanDecode(raw)
	if err != nil {
		return "", 0, err
	}
	return s, total, nil
}
