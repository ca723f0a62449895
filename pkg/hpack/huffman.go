package hpack

import (
	"sync"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
)

// huffmanNode is one node of the canonical decode tree built from
// huffmanCode/huffmanCodeLen. Internal nodes have children set; leaves
// carry the symbol they decode to.
type huffmanNode struct {
	children *[2]*huffmanNode
	sym      int
	isLeaf   bool
}

var (
	huffmanRootOnce sync.Once
	huffmanRoot     *huffmanNode
)

func buildHuffmanTree() {
	huffmanRoot = &huffmanNode{children: &[2]*huffmanNode{}}
	for sym := 0; sym < len(huffmanCode); sym++ {
		code := huffmanCode[sym]
		length := huffmanCodeLen[sym]
		n := huffmanRoot
		for b := int(length) - 1; b >= 0; b-- {
			bit := (code >> uint(b)) & 1
			if n.children == nil {
				n.children = &[2]*huffmanNode{}
			}
			if n.children[bit] == nil {
				n.children[bit] = &huffmanNode{}
			}
			n = n.children[bit]
		}
		n.isLeaf = true
		n.sym = sym
		n.children = nil
	}
}

func root() *huffmanNode {
	huffmanRootOnce.Do(buildHuffmanTree)
	return huffmanRoot
}

// huffmanEncodedLen returns the number of bytes s would occupy Huffman
// encoded, rounded up to a byte boundary.
func huffmanEncodedLen(s string) int {
	bits := 0
	for i := 0; i < len(s); i++ {
		bits += int(huffmanCodeLen[s[i]])
	}
	return (bits + 7) / 8
}

// appendHuffman Huffman-encodes s and appends the result to dst.
func appendHuffman(dst []byte, s string) []byte {
	var acc uint64
	var nbits uint

	for i := 0; i < len(s); i++ {
		code := uint64(huffmanCode[s[i]])
		length := uint(huffmanCodeLen[s[i]])
		acc = acc<<length | code
		nbits += length
		for nbits >= 8 {
			nbits -= 8
			dst = append(dst, byte(acc>>nbits))
		}
	}
	if nbits > 0 {
		// Pad with the high-order bits of the EOS code (all 1s).
		pad := 8 - nbits
		acc = acc<<pad | (1<<pad - 1)
		dst = append(dst, byte(acc))
	}
	return dst
}

// huffmanDecode decodes Huffman-encoded bytes, returning the expanded
// string. It rejects a decoded EOS symbol, trailing padding that is not a
// prefix of the EOS code, and any bit sequence that does not resolve to a
// valid leaf, all per RFC 7541 §5.2.
func huffmanDecode(data []byte) (string, error) {
	n := root()
	cur := n
	out := make([]byte, 0, len(data)*2)

	var pendingBits uint
	for _, b := range data {
		for bit := 7; bit >= 0; bit-- {
			v := (b >> uint(bit)) & 1
			if cur.children == nil {
				return "", errors.NewCompressionError("huffman_decode", "invalid code sequence", nil)
			}
			next := cur.children[v]
			if next == nil {
				return "", errors.NewCompressionError("huffman_decode", "invalid code sequence", nil)
			}
			cur = next
			if cur.isLeaf {
				if cur.sym == eosSymbol {
					return "", errors.NewCompressionError("huffman_decode", "unexpected EOS symbol", nil)
				}
				out = append(out, byte(cur.sym))
				cur = root()
				pendingBits = 0
			} else {
				pendingBits++
			}
		}
	}

	// What remains in cur is incomplete padding. It must be a prefix of the
	// all-ones EOS code and no longer than 7 bits.
	if cur != root() {
		if pendingBits > 7 {
			return "", errors.NewCompressionError("huffman_decode", "incomplete final symbol", nil)
		}
		if !isEOSPrefix(cur) {
			return "", errors.NewCompressionError("huffman_decode", "padding is not a prefix of EOS", nil)
		}
	}

	return string(out), nil
}

// isEOSPrefix reports whether every reachable leaf from n (by following
// all-1 bits) is the EOS symbol, i.e. whether n sits on the EOS code path.
func isEOSPrefix(n *huffmanNode) bool {
	for n.children != nil {
		next := n.children[1]
		if next == nil {
			return false
		}
		n = next
	}
	return n.isLeaf && n.sym == eosSymbol
}
