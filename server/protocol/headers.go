package protocol

// Header is one key/value pair of a message header section.
type Header struct {
	Key, Val string
}

// Headers keeps pairs in insertion order. Names are matched exactly as
// received, no canonicalization. Setting an existing name overwrites
// its value in place, so the pair keeps its original position.
type Headers struct {
	pairs []Header
}

func (h *Headers) Set(key, val string) {
	for i := range h.pairs {
		if h.pairs[i].Key == key {
			h.pairs[i].Val = val
			return
		}
	}
	h.pairs = append(h.pairs, Header{Key: key, Val: val})
}

func (h *Headers) Get(key string) (string, bool) {
	for i := range h.pairs {
		if h.pairs[i].Key == key {
			return h.pairs[i].Val, true
		}
	}
	return "", false
}

// All returns the pairs in insertion order. The slice is a view, not a
// copy.
func (h *Headers) All() []Header { return h.pairs }

func (h *Headers) Len() int { return len(h.pairs) }

func (h *Headers) reset() { h.pairs = h.pairs[:0] }
