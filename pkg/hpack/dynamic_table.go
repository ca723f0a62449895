package hpack

// DynamicTable is the size-bounded FIFO dynamic table of RFC 7541 §2.3.2.
// Entries are stored oldest-first; HPACK numbers the newest entry 62 (one
// past the 61-entry static table) and the oldest entry 61+len(entries).
// Eviction removes from the oldest end until the size invariant holds.
type DynamicTable struct {
	entries []HeaderField
	size    int // sum of entries[i].Size()
	maxSize int // current negotiated bound (<= the peer's SETTINGS_HEADER_TABLE_SIZE)
}

// NewDynamicTable creates a table bounded by maxSize bytes.
func NewDynamicTable(maxSize int) *DynamicTable {
	return &DynamicTable{maxSize: maxSize}
}

// Len returns the number of entries currently held.
func (t *DynamicTable) Len() int {
	return len(t.entries)
}

// Size returns the current total entry size in bytes.
func (t *DynamicTable) Size() int {
	return t.size
}

// MaxSize returns the current size bound.
func (t *DynamicTable) MaxSize() int {
	return t.maxSize
}

// Insert adds f as the newest entry, evicting from the oldest end as needed
// to preserve size <= maxSize. An entry larger than maxSize by itself
// results in an empty table, per RFC 7541 §4.4.
func (t *DynamicTable) Insert(f HeaderField) {
	t.entries = append(t.entries, f)
	t.size += f.Size()
	t.evictToFit()
}

// SetMaxSize applies a new bound (a dynamic table size update from the
// decoder side, or the local encoder's own choice), evicting immediately if
// the new bound is smaller than the current size.
func (t *DynamicTable) SetMaxSize(n int) {
	t.maxSize = n
	t.evictToFit()
}

func (t *DynamicTable) evictToFit() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		oldest := t.entries[0]
		t.size -= oldest.Size()
		t.entries = t.entries[1:]
	}
	if len(t.entries) == 0 {
		t.entries = nil
	}
}

// at returns the dynamic-table entry for 1-based combined HPACK index idx
// (idx must already be > 61), or false if idx has no entry.
func (t *DynamicTable) at(idx int) (HeaderField, bool) {
	rel := idx - 61 // 1 = newest
	if rel < 1 || rel > len(t.entries) {
		return HeaderField{}, false
	}
	pos := len(t.entries) - rel
	return t.entries[pos], true
}

// search mirrors the static table's search helper: it looks for an exact
// (name, value) match first (newest entry wins on ties), falling back to a
// name-only match. Returns the combined (61+) HPACK index, or 0 if absent.
func (t *DynamicTable) search(f HeaderField) (exactIdx, nameIdx int) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		idx := 61 + (len(t.entries) - i)
		if e == f && exactIdx == 0 {
			exactIdx = idx
		}
		if e.Name == f.Name && nameIdx == 0 {
			nameIdx = idx
		}
		if exactIdx != 0 && nameIdx != 0 {
			break
		}
	}
	return exactIdx, nameIdx
}
