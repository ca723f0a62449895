package hpack

// Encoder turns an ordered header list into an HPACK-compressed byte
// string, maintaining the dynamic table state HPACK requires to be kept in
// lockstep with the peer's decoder.
type Encoder struct {
	dynTable    *DynamicTable
	pendingSize *int // set by SetMaxDynamicTableSize, emitted at the next Encode call
}

// NewEncoder creates an Encoder whose dynamic table starts at maxTableSize
// bytes (the value we will advertise to the peer as our own
// SETTINGS_HEADER_TABLE_SIZE has no bearing here — this governs the table
// our own encoder is allowed to grow).
func NewEncoder(maxTableSize int) *Encoder {
	return &Encoder{dynTable: NewDynamicTable(maxTableSize)}
}

// SetMaxDynamicTableSize records a new bound for the dynamic table the
// encoder maintains. Per RFC 7541 §4.2 this must be communicated to the
// peer via a dynamic table size update representation at the start of the
// next header block, so the change is only applied to the table when
// Encode is next called.
func (e *Encoder) SetMaxDynamicTableSize(n int) {
	e.pendingSize = &n
}

// Encode appends an HPACK header block representing headers to dst and
// returns the extended slice.
func (e *Encoder) Encode(dst []byte, headers []HeaderField) []byte {
	if e.pendingSize != nil {
		dst = appendInt(dst, 5, 0x20, uint64(*e.pendingSize))
		e.dynTable.SetMaxSize(*e.pendingSize)
		e.pendingSize = nil
	}

	for _, f := range headers {
		dst = e.encodeField(dst, f)
	}
	return dst
}

func (e *Encoder) encodeField(dst []byte, f HeaderField) []byte {
	exact, name := e.findIndex(f)

	if exact != 0 {
		return appendInt(dst, 7, 0x80, uint64(exact))
	}

	if name != 0 {
		dst = appendInt(dst, 6, 0x40, uint64(name))
	} else {
		dst = append(dst, 0x40)
		dst = appendString(dst, f.Name)
	}
	dst = appendString(dst, f.Value)

	e.dynTable.Insert(f)
	return dst
}

func (e *Encoder) findIndex(f HeaderField) (exact, name int) {
	if idx, ok := staticExactIndex[f]; ok {
		exact = idx
	}
	if idx, ok := staticNameIndex[f.Name]; ok {
		name = idx
	}
	dExact, dName := e.dynTable.search(f)
	if exact == 0 {
		exact = dExact
	}
	if name == 0 {
		name = dName
	}
	return exact, name
}
