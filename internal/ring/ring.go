// Package ring provides a lock-free single-producer/single-consumer float32
// ring buffer. internal/audio's Extractor keeps one per FFT window as its
// sliding sample history on the analysis goroutine; the audio capture
// callback does not write to it and hands hops over a channel instead.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity SPSC ring buffer of float32 samples.
//
// Exactly one goroutine may call Write (the producer) and exactly one
// goroutine may call Read (the consumer). Capacity is rounded
// up to the next power of two so the index wrap can use a mask instead of
// a modulo.
type Buffer struct {
	data []float32
	mask uint64

	// head is the next slot the writer will fill; tail is the next slot
	// the reader will consume. Both only ever increase and are wrapped by
	// masking on access, so there is no ABA issue at these sizes.
	head atomic.Uint64
	tail atomic.Uint64
}

// NewBuffer creates a ring buffer able to hold at least capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	size := nextPow2(capacity)
	return &Buffer{
		data: make([]float32, size),
		mask: uint64(size - 1),
	}
}

func nextPow2(n int) int {
	v := 1
	for v < n {
		v <<= 1
	}
	return v
}

// Len returns the number of samples currently available to read.
func (b *Buffer) Len() int {
	return int(b.head.Load() - b.tail.Load())
}

// Cap returns the buffer's total capacity in samples.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Write appends samples to the buffer, never blocking. If the buffer would
// overflow, it drops the oldest unread samples to make room (overwrite
// policy) rather than blocking the capture callback, and reports how many
// samples were dropped.
func (b *Buffer) Write(samples []float32) (dropped int) {
	head := b.head.Load()
	tail := b.tail.Load()
	free := uint64(len(b.data)) - (head - tail)

	if uint64(len(samples)) > free {
		overflow := uint64(len(samples)) - free
		tail += overflow
		dropped = int(overflow)
	}

	for _, s := range samples {
		b.data[head&b.mask] = s
		head++
	}

	b.tail.Store(tail)
	b.head.Store(head)
	return dropped
}

// Read drains up to len(out) available samples into out, returning the
// number of samples actually read. It never blocks.
func (b *Buffer) Read(out []float32) int {
	head := b.head.Load()
	tail := b.tail.Load()
	avail := head - tail
	n := uint64(len(out))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		out[i] = b.data[tail&b.mask]
		tail++
	}
	b.tail.Store(tail)
	return int(n)
}

// Peek copies up to len(out) of the most recently written samples without
// consuming them, for algorithms that need a sliding window (the FFT
// windows in internal/audio) rather than a drain-to-empty consumer.
func (b *Buffer) Peek(out []float32) int {
	head := b.head.Load()
	tail := b.tail.Load()
	avail := head - tail
	n := uint64(len(out))
	if n > avail {
		n = avail
	}
	start := head - n
	for i := uint64(0); i < n; i++ {
		out[i] = b.data[(start+i)&b.mask]
	}
	return int(n)
}
