// Package dispatch implements the L5 boundary between the wire protocol
// engines (pkg/http1, pkg/http2conn) and the application-supplied handler:
// the Request/Response types, the handler contract, and the
// protocol-failure-to-problem-details mapping.
package dispatch

import "strings"

// HeaderField is one ordered (name, value) pair. HTTP/1.1 requests keep the
// wire's original casing; HTTP/2 requests are already lowercase per RFC
// 7540 §8.1.2. Comparison is always case-insensitive.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered multimap of header fields, preserving both
// duplicate entries and wire order (needed for things like repeated
// Set-Cookie headers and deterministic pseudo-header-first encoding).
type Header struct {
	fields []HeaderField
}

// Add appends a field, keeping any existing entries for the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{name, value})
}

// Set replaces all existing entries for name with a single value.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the first value for name, case-insensitively, or "".
func (h *Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name, in wire order.
func (h *Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Del removes every entry for name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Has reports whether name has at least one entry.
func (h *Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// All returns every field in wire order. The returned slice must not be
// mutated by the caller.
func (h *Header) All() []HeaderField {
	return h.fields
}

// Len returns the number of fields, including duplicates.
func (h *Header) Len() int {
	return len(h.fields)
}
