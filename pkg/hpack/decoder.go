package hpack

import "github.com/WhileEndless/go-rawserver/pkg/errors"

// Decoder turns an HPACK-compressed byte string back into an ordered
// header list, tracking the dynamic table and the cumulative header-list
// size bound that defends against decompression bombs (RFC 7541 §4.2.5 /
// spec §4.2.5).
type Decoder struct {
	dynTable          *DynamicTable
	maxHeaderListSize int
	maxAllowedTable   int // the SETTINGS_HEADER_TABLE_SIZE we advertised; peer size updates may not exceed it
}

// NewDecoder creates a Decoder. maxHeaderListSize bounds the cumulative
// len(name)+len(value) across one decoded header block.
func NewDecoder(initialTableSize, maxHeaderListSize int) *Decoder {
	return &Decoder{
		dynTable:          NewDynamicTable(initialTableSize),
		maxHeaderListSize: maxHeaderListSize,
		maxAllowedTable:   initialTableSize,
	}
}

// SetMaxHeaderListSize updates the decompression bound, e.g. when
// ServerOptions changes it.
func (d *Decoder) SetMaxHeaderListSize(n int) {
	d.maxHeaderListSize = n
}

// DynamicTableSize reports the decoder's current dynamic table size, for
// diagnostics/tests.
func (d *Decoder) DynamicTableSize() int {
	return d.dynTable.Size()
}

// Decode parses one complete header block (already reassembled from
// HEADERS + any CONTINUATION frames) into an ordered header list.
func (d *Decoder) Decode(data []byte) ([]HeaderField, error) {
	var out []HeaderField
	cum := 0
	pos := 0

	for pos < len(data) {
		b := data[pos]
		switch {
		case b&0x80 != 0: // Indexed Header Field — RFC 7541 §6.1
			idx, n, err := decodeInt(data[pos:], 7)
			if err != nil {
				return nil, err
			}
			f, err := d.lookup(int(idx))
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			cum += len(f.Name) + len(f.Value)
			pos += n

		case b&0xC0 == 0x40: // Literal with incremental indexing — §6.2.1
			f, n, err := d.decodeLiteral(data[pos:], 6)
			if err != nil {
				return nil, err
			}
			d.dynTable.Insert(f)
			out = append(out, f)
			cum += len(f.Name) + len(f.Value)
			pos += n

		case b&0xF0 == 0x00: // Literal without indexing — §6.2.2
			f, n, err := d.decodeLiteral(data[pos:], 4)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			cum += len(f.Name) + len(f.Value)
			pos += n

		case b&0xF0 == 0x10: // Literal never indexed — §6.2.3
			f, n, err := d.decodeLiteral(data[pos:], 4)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			cum += len(f.Name) + len(f.Value)
			pos += n

		case b&0xE0 == 0x20: // Dynamic table size update — §6.3
			if len(out) != 0 {
				return nil, errors.NewCompressionError("hpack_decode", "dynamic table size update must precede all other representations", nil)
			}
			n, m, err := decodeInt(data[pos:], 5)
			if err != nil {
				return nil, err
			}
			if int(n) > d.maxAllowedTable {
				return nil, errors.NewCompressionError("hpack_decode", "dynamic table size update exceeds advertised bound", nil)
			}
			d.dynTable.SetMaxSize(int(n))
			pos += m

		default:
			return nil, errors.NewCompressionError("hpack_decode", "unrecognized header field representation", nil)
		}

		if cum > d.maxHeaderListSize {
			return nil, errors.NewCompressionError("hpack_decode", "cumulative header list size exceeds max_header_list_size", nil)
		}
	}

	return out, nil
}

func (d *Decoder) decodeLiteral(data []byte, prefixBits uint) (HeaderField, int, error) {
	idx, n, err := decodeInt(data, prefixBits)
	if err != nil {
		return HeaderField{}, 0, err
	}
	pos := n

	var name string
	if idx == 0 {
		s, m, err := decodeString(data[pos:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = s
		pos += m
	} else {
		f, err := d.lookup(int(idx))
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = f.Name
	}

	value, m, err := decodeString(data[pos:])
	if err != nil {
		return HeaderField{}, 0, err
	}
	pos += m

	return HeaderField{Name: name, Value: value}, pos, nil
}

func (d *Decoder) lookup(idx int) (HeaderField, error) {
	if idx >= 1 && idx <= len(staticTable) {
		return staticTable[idx-1], nil
	}
	if f, ok := d.dynTable.at(idx); ok {
		return f, nil
	}
	return HeaderField{}, errors.NewCompressionError("hpack_decode", "header index out of range", nil)
}
