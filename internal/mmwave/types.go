// Package mmwave ingests the binary detection stream of a TI-style mmWave
// radar sensor and classifies the decoded point cloud.
//
// The pipeline has a single producer and a single consumer. A Collector owns
// the serial port and a background reader goroutine that reassembles frames
// (FrameSync), decodes TLV records into Detections (DecodeFrame) and pushes
// them into a bounded DetectionQueue. Consumers drain the queue and run the
// classifier synchronously; the queue is the only shared mutable state
// crossing the goroutine boundary.
package mmwave

import "time"

// Detection is one decoded 3D point from the sensor. Detections are created
// once by the decoder and immutable afterwards; they cross the
// producer/consumer boundary by value.
type Detection struct {
	X         float64   `json:"x"`        // meters, left-right
	Y         float64   `json:"y"`        // meters, forward
	Z         float64   `json:"z"`        // meters, up
	Velocity  float64   `json:"velocity"` // radial velocity, m/s
	Range     float64   `json:"range"`    // Euclidean distance from sensor, meters
	SNR       float64   `json:"snr"`      // signal-to-noise ratio, dB
	Timestamp time.Time `json:"timestamp"`
}

// Label is the semantic category assigned to a classified point. The four
// labels are mutually exclusive.
type Label string

const (
	LabelHuman   Label = "Human"
	LabelMoving  Label = "Moving"
	LabelStatic  Label = "Static"
	LabelClutter Label = "Clutter"
)

// NoiseClusterID marks points outside any dense neighbourhood.
const NoiseClusterID = -1

// ClassifiedPoint is a Detection with its cluster assignment and label.
type ClassifiedPoint struct {
	Detection
	ClusterID int   `json:"cluster_id"`
	Label     Label `json:"label"`
}

// HumanSummary describes one cluster that was labelled Human.
type HumanSummary struct {
	ClusterID int     `json:"cluster_id"`
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
	CentroidZ float64 `json:"centroid_z"`
	Points    int     `json:"points"`
}
