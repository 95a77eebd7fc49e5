// ring.go - Lock-free SPSC ring of interleaved float32 frames

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
License: GPLv3 or later
*/

package engine

import (
	"fmt"
	"sync/atomic"
)

// Ring is a single-producer, single-consumer circular buffer of interleaved
// frames. Cursors are frame indices in [0, capacity). One frame is always
// left empty so that w == r means empty without a separate count.
//
// Thread assignment:
//   - Write, AvailableSpace: producer only
//   - Read, AvailableData: consumer only (both sides may call AvailableData)
//
// Sample data is copied before the owning cursor is published, and the other
// side loads that cursor before touching data, so no lock is held during the
// bulk copy.
type Ring struct {
	writeCursor atomic.Uint64
	_pad1       [56]byte
	readCursor  atomic.Uint64
	_pad2       [56]byte

	data     []float32
	capacity uint64 // frames
	stride   int    // channels per frame
}

// NewRing allocates a ring of capacity frames of stride channels each. The
// usable size is capacity-1 frames.
func NewRing(capacity, stride int) (*Ring, error) {
	if capacity < 2 || stride <= 0 {
		return nil, fmt.Errorf("%w: ring capacity %d, stride %d", ErrInvalidConfig, capacity, stride)
	}
	return &Ring{
		data:     make([]float32, capacity*stride),
		capacity: uint64(capacity),
		stride:   stride,
	}, nil
}

func (r *Ring) Capacity() int { return int(r.capacity) }
func (r *Ring) Stride() int   { return r.stride }

// AvailableData returns the number of frames ready to read.
func (r *Ring) AvailableData() int {
	w := r.writeCursor.Load()
	rd := r.readCursor.Load()
	return int((w - rd + r.capacity) % r.capacity)
}

// AvailableSpace returns the number of frames that can be written.
func (r *Ring) AvailableSpace() int {
	w := r.writeCursor.Load()
	rd := r.readCursor.Load()
	return int((rd - w - 1 + r.capacity) % r.capacity)
}

// Write appends whole frames. It writes everything or nothing; a false
// return means there was not enough space and the ring is unchanged.
func (r *Ring) Write(frames []float32) bool {
	if len(frames)%r.stride != 0 {
		return false
	}
	n := uint64(len(frames) / r.stride)
	if n == 0 {
		return true
	}
	w := r.writeCursor.Load()
	rd := r.readCursor.Load()
	if space := (rd - w - 1 + r.capacity) % r.capacity; n > space {
		return false
	}

	stride := uint64(r.stride)
	pos := w * stride
	first := min(n, r.capacity-w) * stride
	copy(r.data[pos:pos+first], frames[:first])
	if rest := n*stride - first; rest > 0 {
		copy(r.data[:rest], frames[first:])
	}

	r.writeCursor.Store((w + n) % r.capacity)
	return true
}

// Read copies up to len(dst)/stride frames into dst and returns how many
// frames were available. Whatever part of dst could not be filled is zeroed,
// so a short read plays as silence. Read never blocks.
func (r *Ring) Read(dst []float32) int {
	stride := uint64(r.stride)
	want := uint64(len(dst)) / stride
	rd := r.readCursor.Load()
	w := r.writeCursor.Load()
	n := min(want, (w-rd+r.capacity)%r.capacity)

	if n > 0 {
		pos := rd * stride
		first := min(n, r.capacity-rd) * stride
		copy(dst[:first], r.data[pos:pos+first])
		if rest := n*stride - first; rest > 0 {
			copy(dst[first:first+rest], r.data[:rest])
		}
		r.readCursor.Store((rd + n) % r.capacity)
	}
	clear(dst[n*stride:])
	return int(n)
}

// Clear empties the ring. It must not run while either side is active.
func (r *Ring) Clear() {
	r.writeCursor.Store(0)
	r.readCursor.Store(0)
}
