package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// ErrBufferFull is returned when appending a chunk would exceed the
// configured audio buffer bound.
var ErrBufferFull = errors.New("audio buffer full")

// audioBuffer assembles PCM16LE chunks arriving keyed by sequence number.
// Chunks that arrive in order are flushed straight into a fixed-capacity
// ringbuffer.RingBuffer; chunks that arrive early are held in pending
// until the gap closes. A duplicate sequence overwrites the earlier one
// only while that chunk is still pending; a duplicate of a chunk already
// flushed into the ring buffer is ignored, so the first flushed payload
// is kept. The total-bytes bound is enforced against the
// combined flushed+pending size on every append, never by evicting.
type audioBuffer struct {
	mu       sync.Mutex
	capacity int
	rb       *ringbuffer.RingBuffer
	pending  map[uint64][]byte
	nextSeq  uint64
	haveNext bool
	maxSeq   uint64
	haveSeq  bool
	size     int
}

func newAudioBuffer(capacity int) *audioBuffer {
	return &audioBuffer{
		capacity: capacity,
		rb:       ringbuffer.New(capacity).SetBlocking(false),
		pending:  make(map[uint64][]byte),
	}
}

// Append adds a chunk at the given sequence. It returns ErrBufferFull
// without mutating state if the new total would exceed capacity.
func (a *audioBuffer) Append(sequence uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.haveNext && sequence < a.nextSeq {
		// Already flushed into rb; a duplicate of an already-flushed
		// sequence is a pure no-op, last-writer-wins only applies while
		// the chunk is still pending.
		return nil
	}

	prevLen := 0
	if old, ok := a.pending[sequence]; ok {
		prevLen = len(old)
	}

	newSize := a.size - prevLen + len(data)
	if newSize > a.capacity {
		return ErrBufferFull
	}
	a.size = newSize
	a.pending[sequence] = data
	if !a.haveSeq || sequence > a.maxSeq {
		a.maxSeq = sequence
		a.haveSeq = true
	}
	if !a.haveNext {
		// The first chunk of a session fixes where "contiguous" starts;
		// sessions number chunks from 1 (spec.md §8 S1), not 0, and
		// pending[0] would otherwise never arrive to unblock the drain.
		a.nextSeq = sequence
		a.haveNext = true
	}
	a.flushContiguous()
	return nil
}

// flushContiguous moves every chunk starting at nextSeq into the
// ringbuffer as long as there's no gap.
func (a *audioBuffer) flushContiguous() {
	if !a.haveNext {
		return
	}
	for {
		chunk, ok := a.pending[a.nextSeq]
		if !ok {
			return
		}
		if _, err := a.rb.Write(chunk); err != nil {
			return
		}
		delete(a.pending, a.nextSeq)
		a.nextSeq++
	}
}

// Bytes returns the buffered audio concatenated in sequence order. If a
// gap remains (a sequence was never received), the available chunks are
// still joined best-effort and gapWarning is true.
func (a *audioBuffer) Bytes() (data []byte, gapWarning bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	flushed := make([]byte, a.rb.Length())
	a.rb.Bytes(flushed)

	if len(a.pending) == 0 {
		return flushed, false
	}

	seqs := make([]uint64, 0, len(a.pending))
	for s := range a.pending {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	out := make([]byte, 0, len(flushed)+a.size)
	out = append(out, flushed...)
	for _, s := range seqs {
		out = append(out, a.pending[s]...)
	}
	return out, true
}

func (a *audioBuffer) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}
