package protocol

// Buffer is an append-only byte sequence with a read cursor and a
// commit checkpoint. The parser consumes bytes speculatively and
// commits after every complete token, so a half-received token can be
// rolled back and re-read verbatim once more bytes arrive.
//
// invariant: 0 <= checkpoint <= head <= len(bytes)
type Buffer struct {
	bytes      []byte
	head       int
	checkpoint int
}

// append raw bytes, cursors stay put
func (b *Buffer) Append(p []byte) {
	b.bytes = append(b.bytes, p...)
}

func (b *Buffer) AppendString(s string) {
	b.bytes = append(b.bytes, s...)
}

// Next returns the byte under the head cursor and advances past it.
// At end of buffer it reports false and the cursor does not move.
func (b *Buffer) Next() (byte, bool) {
	if b.head >= len(b.bytes) {
		return 0, false
	}
	c := b.bytes[b.head]
	b.head++
	return c, true
}

// Commit marks everything before the head cursor as consumed.
func (b *Buffer) Commit() {
	b.checkpoint = b.head
}

// Rollback moves the head cursor back to the last commit.
func (b *Buffer) Rollback() {
	b.head = b.checkpoint
}

// Seek places the head cursor at an absolute position. Out-of-range
// positions are refused and the cursor stays put. Seeking before the
// checkpoint drags the checkpoint along to keep it behind the head.
func (b *Buffer) Seek(pos int) bool {
	if pos < 0 || pos > len(b.bytes) {
		return false
	}
	b.head = pos
	if b.checkpoint > b.head {
		b.checkpoint = b.head
	}
	return true
}

// Advance moves the head cursor relative to its current position.
func (b *Buffer) Advance(n int) bool {
	return b.Seek(b.head + n)
}

func (b *Buffer) Head() int { return b.head }

func (b *Buffer) Committed() int { return b.checkpoint }

func (b *Buffer) Len() int { return len(b.bytes) }

// Remaining reports how many bytes sit after the head cursor.
func (b *Buffer) Remaining() int { return len(b.bytes) - b.head }

// BytesBefore returns the bytes before the head cursor.
func (b *Buffer) BytesBefore() []byte { return b.bytes[:b.head] }

// BytesAfter returns the bytes from the head cursor to the end.
func (b *Buffer) BytesAfter() []byte { return b.bytes[b.head:] }

// Reset empties the buffer for reuse, keeping the backing array.
func (b *Buffer) Reset() {
	b.bytes = b.bytes[:0]
	b.head = 0
	b.checkpoint = 0
}
