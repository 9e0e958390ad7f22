package mmwave

import (
	"bytes"
	"encoding/binary"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/monitoring"
)

// Frame layout constants. All multi-byte fields are little-endian.
const (
	// MagicWordSize is the length of the frame start marker.
	MagicWordSize = 8
	// HeaderLenOffset is the byte offset of the header-length field,
	// counted from the start of the magic word.
	HeaderLenOffset = 8
	// TotalLenOffset is the byte offset of the total-packet-length field.
	TotalLenOffset = 12
	// MaxFrameBytes is the sanity bound on a declared frame length. A
	// corrupted length field above this is rejected rather than stalling
	// the stream waiting for bytes that will never arrive.
	MaxFrameBytes = 64 * 1024

	// maxUnsyncedBytes caps the raw buffer while no magic word is in
	// sight, so line noise cannot grow it without bound.
	maxUnsyncedBytes = 64 * 1024
	// syncTailBytes is how much of an unsynced buffer to keep when
	// truncating: enough to catch a magic word split across two reads.
	syncTailBytes = 2 * MagicWordSize
)

// magicWord is the fixed 8-byte marker that starts every sensor frame.
var magicWord = []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}

// FrameSync locates frame boundaries in a growing byte stream. It is not
// safe for concurrent use; the reader goroutine owns it exclusively.
type FrameSync struct {
	buf []byte

	frames     uint64 // complete frames emitted
	discarded  uint64 // noise bytes dropped while scanning
	badLengths uint64 // markers rejected for implausible length fields
}

// NewFrameSync returns an empty FrameSync.
func NewFrameSync() *FrameSync {
	return &FrameSync{}
}

// Consume appends raw bytes from the serial port to the internal buffer.
func (s *FrameSync) Consume(p []byte) {
	s.buf = append(s.buf, p...)
}

// NextFrame returns the next complete frame, byte-exact from magic word to
// declared total length, or (nil, false) when more data is needed. Corrupted
// length fields are recovered from locally by skipping the offending marker
// and rescanning.
func (s *FrameSync) NextFrame() ([]byte, bool) {
	for {
		idx := bytes.Index(s.buf, magicWord)
		if idx == -1 {
			if len(s.buf) > maxUnsyncedBytes {
				drop := len(s.buf) - syncTailBytes
				s.discarded += uint64(drop)
				monitoring.Logf("framesync: no marker in %d bytes, dropping %d", len(s.buf), drop)
				s.buf = append(s.buf[:0], s.buf[drop:]...)
			}
			return nil, false
		}

		if idx > 0 {
			// Noise before the marker.
			s.discarded += uint64(idx)
			s.buf = s.buf[idx:]
		}

		if len(s.buf) < TotalLenOffset+4 {
			return nil, false
		}

		headerLen := binary.LittleEndian.Uint32(s.buf[HeaderLenOffset : HeaderLenOffset+4])
		totalLen := binary.LittleEndian.Uint32(s.buf[TotalLenOffset : TotalLenOffset+4])

		if totalLen <= headerLen || totalLen > MaxFrameBytes {
			// Implausible length field. Skip this marker occurrence and
			// keep scanning; the stream resynchronises at the next one.
			monitoring.Logf("framesync: rejecting marker, declared total=%d header=%d", totalLen, headerLen)
			s.badLengths++
			s.discarded += uint64(MagicWordSize)
			s.buf = s.buf[MagicWordSize:]
			continue
		}

		if len(s.buf) < int(totalLen) {
			return nil, false
		}

		frame := make([]byte, totalLen)
		copy(frame, s.buf[:totalLen])
		s.buf = s.buf[totalLen:]
		s.frames++
		return frame, true
	}
}

// FrameSyncStats is a snapshot of sync counters for diagnostics.
type FrameSyncStats struct {
	Frames     uint64 `json:"frames"`
	Discarded  uint64 `json:"discarded_bytes"`
	BadLengths uint64 `json:"bad_lengths"`
	Buffered   int    `json:"buffered_bytes"`
}

// Stats returns the current sync counters.
func (s *FrameSync) Stats() FrameSyncStats {
	return FrameSyncStats{
		Frames:     s.frames,
		Discarded:  s.discarded,
		BadLengths: s.badLengths,
		Buffered:   len(s.buf),
	}
}
