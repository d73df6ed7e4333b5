package models

import "encoding/json"

// MaxOutputChunks is the number of output chunks retained per task.
const MaxOutputChunks = 1000

// OutputBuffer is a fixed-capacity ring of output chunks. Once full, appending
// evicts the oldest chunk. Chunks are never split or truncated.
//
// OutputBuffer is not safe for concurrent use; the queue controller serializes
// access to it.
type OutputBuffer struct {
	chunks []string
	head   int // index of the oldest chunk
	size   int
}

// NewOutputBuffer creates an empty buffer holding at most capacity chunks.
func NewOutputBuffer(capacity int) *OutputBuffer {
	if capacity <= 0 {
		capacity = MaxOutputChunks
	}
	return &OutputBuffer{chunks: make([]string, capacity)}
}

// Cap returns the buffer capacity.
func (b *OutputBuffer) Cap() int {
	return len(b.chunks)
}

// Len returns the number of chunks currently held.
func (b *OutputBuffer) Len() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Append adds a chunk, evicting the oldest one when the buffer is full.
// It reports whether a chunk was evicted.
func (b *OutputBuffer) Append(chunk string) bool {
	capacity := len(b.chunks)
	if b.size < capacity {
		b.chunks[(b.head+b.size)%capacity] = chunk
		b.size++
		return false
	}
	b.chunks[b.head] = chunk
	b.head = (b.head + 1) % capacity
	return true
}

// Chunks returns the held chunks, oldest first.
func (b *OutputBuffer) Chunks() []string {
	if b == nil {
		return []string{}
	}
	out := make([]string, b.size)
	capacity := len(b.chunks)
	for i := 0; i < b.size; i++ {
		out[i] = b.chunks[(b.head+i)%capacity]
	}
	return out
}

// Tail returns the last n chunks, oldest first.
func (b *OutputBuffer) Tail(n int) []string {
	all := b.Chunks()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Reset drops every chunk.
func (b *OutputBuffer) Reset() {
	for i := range b.chunks {
		b.chunks[i] = ""
	}
	b.head = 0
	b.size = 0
}

// Clone returns an independent copy of the buffer.
func (b *OutputBuffer) Clone() *OutputBuffer {
	c := NewOutputBuffer(len(b.chunks))
	for _, chunk := range b.Chunks() {
		c.Append(chunk)
	}
	return c
}

// MarshalJSON encodes the buffer as a plain array of chunks, oldest first.
func (b *OutputBuffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Chunks())
}

// UnmarshalJSON decodes an array of chunks. When the array is longer than
// MaxOutputChunks only the most recent chunks are kept.
func (b *OutputBuffer) UnmarshalJSON(data []byte) error {
	var chunks []string
	if err := json.Unmarshal(data, &chunks); err != nil {
		return err
	}
	if len(b.chunks) == 0 {
		b.chunks = make([]string, MaxOutputChunks)
	}
	b.Reset()
	for _, chunk := range chunks {
		b.Append(chunk)
	}
	return nil
}
