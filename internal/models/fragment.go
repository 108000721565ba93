package models

import "fmt"

// Fragment represents one downloadable HDS media fragment.
// This struct is used across different packages to represent a chunk of
// the stream between the schedule, the downloader and the writer.
type Fragment struct {
	// URL is the fully-qualified URL to fetch the fragment from.
	URL string
	// Segment is the 1-based segment number the fragment belongs to.
	Segment uint32
	// Number is the 1-based global fragment number.
	Number uint32
	// Timestamp is the fragment's start time in bootstrap timescale units.
	Timestamp uint64
	// Duration is the fragment's duration in bootstrap timescale units.
	Duration uint32
}

// ID returns the fragment's canonical identifier, matching the URL
// suffix convention.
func (f Fragment) ID() string {
	return fmt.Sprintf("Seg%d-Frag%d", f.Segment, f.Number)
}
