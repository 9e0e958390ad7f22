package mmwave

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/monitoring"
)

// TLV record types emitted by the demo firmware.
const (
	// TLVDetectedPoints carries packed float32 quadruples (x, y, z,
	// velocity), one per detected object.
	TLVDetectedPoints = 1
	// TLVSideInfo carries packed int16 pairs (snr, noise), one per
	// detected object, positionally aligned with TLVDetectedPoints.
	TLVSideInfo = 7
)

// Fixed header offsets within a frame. The header-length field at
// HeaderLenOffset is authoritative for where TLVs begin; it varies between
// firmware builds, so it must not be assumed to be 40.
const (
	numDetectedObjOffset = 28
	numTLVOffset         = 32
	minHeaderBytes       = numTLVOffset + 4

	tlvHeaderSize      = 8
	pointRecordSize    = 16 // 4 × float32
	sideInfoRecordSize = 4  // 2 × int16

	// snrScale converts the raw int16 SNR field to dB.
	snrScale = 0.1
)

// DecodeFrame decodes one complete frame into Detections in firmware order.
//
// Malformed or truncated TLVs never fail the whole frame: decoding stops at
// the offending record and whatever was decoded before it is kept. An error
// is returned only when the frame is too short to contain the fixed header,
// which FrameSync should have made impossible.
func DecodeFrame(frame []byte) ([]Detection, error) {
	if len(frame) < minHeaderBytes {
		return nil, fmt.Errorf("frame too short for header: %d bytes", len(frame))
	}

	headerLen := int(binary.LittleEndian.Uint32(frame[HeaderLenOffset : HeaderLenOffset+4]))
	numObj := int(binary.LittleEndian.Uint32(frame[numDetectedObjOffset : numDetectedObjOffset+4]))
	numTLVs := int(binary.LittleEndian.Uint32(frame[numTLVOffset : numTLVOffset+4]))

	if headerLen < minHeaderBytes || headerLen > len(frame) {
		return nil, fmt.Errorf("implausible header length %d in %d-byte frame", headerLen, len(frame))
	}

	var points []pointRecord
	var snrs []float64

	offset := headerLen
	for i := 0; i < numTLVs; i++ {
		if offset+tlvHeaderSize > len(frame) {
			monitoring.Logf("tlv: header %d/%d truncated at offset %d, keeping %d decoded TLVs", i+1, numTLVs, offset, i)
			break
		}
		tlvType := binary.LittleEndian.Uint32(frame[offset : offset+4])
		tlvLen := int(binary.LittleEndian.Uint32(frame[offset+4 : offset+8]))
		offset += tlvHeaderSize

		if offset+tlvLen > len(frame) {
			monitoring.Logf("tlv: type %d declares %d bytes but only %d remain, truncating frame", tlvType, tlvLen, len(frame)-offset)
			break
		}
		payload := frame[offset : offset+tlvLen]

		switch tlvType {
		case TLVDetectedPoints:
			points = decodePoints(payload, numObj)
		case TLVSideInfo:
			snrs = decodeSideInfo(payload, numObj)
		default:
			// Unknown type: skip by declared length.
		}
		offset += tlvLen
	}

	if len(points) == 0 {
		return nil, nil
	}

	// Pair points with side info positionally. When the side-info TLV is
	// missing or shorter than the point list, SNR defaults to zero. The
	// pairing silently misaligns if the firmware ever emits diverging
	// counts; see the package design notes before changing this.
	now := time.Now()
	detections := make([]Detection, len(points))
	for i, p := range points {
		var snr float64
		if i < len(snrs) {
			snr = snrs[i]
		}
		detections[i] = Detection{
			X:         p.x,
			Y:         p.y,
			Z:         p.z,
			Velocity:  p.v,
			Range:     math.Sqrt(p.x*p.x + p.y*p.y + p.z*p.z),
			SNR:       snr,
			Timestamp: now,
		}
	}
	return detections, nil
}

type pointRecord struct {
	x, y, z, v float64
}

// decodePoints unpacks up to numObj float32 quadruples, stopping early on a
// short payload.
func decodePoints(payload []byte, numObj int) []pointRecord {
	points := make([]pointRecord, 0, numObj)
	for i := 0; i < numObj; i++ {
		base := i * pointRecordSize
		if base+pointRecordSize > len(payload) {
			monitoring.Logf("tlv: point payload short, decoded %d of %d objects", i, numObj)
			break
		}
		points = append(points, pointRecord{
			x: float32le(payload[base:]),
			y: float32le(payload[base+4:]),
			z: float32le(payload[base+8:]),
			v: float32le(payload[base+12:]),
		})
	}
	return points
}

// decodeSideInfo unpacks up to numObj (snr, noise) int16 pairs. Only the SNR
// half is used downstream.
func decodeSideInfo(payload []byte, numObj int) []float64 {
	snrs := make([]float64, 0, numObj)
	for i := 0; i < numObj; i++ {
		base := i * sideInfoRecordSize
		if base+sideInfoRecordSize > len(payload) {
			break
		}
		raw := int16(binary.LittleEndian.Uint16(payload[base : base+2]))
		snrs = append(snrs, float64(raw)*snrScale)
	}
	return snrs
}

func float32le(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}
