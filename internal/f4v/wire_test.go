package f4v_test

import (
	"bytes"
	"encoding/binary"
)

// wire builds big-endian test buffers field by field.
type wire struct {
	bytes.Buffer
}

func (w *wire) u8(v uint8) {
	w.WriteByte(v)
}

func (w *wire) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *wire) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func (w *wire) str(s string) {
	w.WriteString(s)
	w.WriteByte(0)
}

// box wraps a payload in a size+type header.
func box(boxType string, payload []byte) []byte {
	var w wire
	w.u32(uint32(len(payload) + 8))
	w.WriteString(boxType)
	w.Write(payload)
	return w.Bytes()
}

type fragmentRun struct {
	first         uint32
	timestamp     uint64
	duration      uint32
	discontinuity uint8 // written only when duration == 0
}

func asrtBox(modifiers []string, entries [][2]uint32) []byte {
	var w wire
	w.u8(0)
	w.Write([]byte{0, 0, 0})
	w.u8(uint8(len(modifiers)))
	for _, m := range modifiers {
		w.str(m)
	}
	w.u32(uint32(len(entries)))
	for _, e := range entries {
		w.u32(e[0])
		w.u32(e[1])
	}
	return box("asrt", w.Bytes())
}

func afrtBox(timescale uint32, modifiers []string, entries []fragmentRun) []byte {
	var w wire
	w.u8(0)
	w.Write([]byte{0, 0, 0})
	w.u32(timescale)
	w.u8(uint8(len(modifiers)))
	for _, m := range modifiers {
		w.str(m)
	}
	w.u32(uint32(len(entries)))
	for _, e := range entries {
		w.u32(e.first)
		w.u64(e.timestamp)
		w.u32(e.duration)
		if e.duration == 0 {
			w.u8(e.discontinuity)
		}
	}
	return box("afrt", w.Bytes())
}

type bootstrapSpec struct {
	bootstrapInfoVersion uint32
	profile              uint8
	timescale            uint32
	currentMediaTime     uint64
	movieIdentifier      string
	serverEntries        []string
	qualityEntries       []string
	drmData              string
	metadata             string
	segmentTables        [][]byte
	fragmentTables       [][]byte
}

func abstBox(s bootstrapSpec) []byte {
	var w wire
	w.u8(0)
	w.Write([]byte{0, 0, 0})
	w.u32(s.bootstrapInfoVersion)
	w.u8(s.profile)
	w.u32(s.timescale)
	w.u64(s.currentMediaTime)
	w.u64(0) // smpteTimeCodeOffset
	w.str(s.movieIdentifier)
	w.u8(uint8(len(s.serverEntries)))
	for _, e := range s.serverEntries {
		w.str(e)
	}
	w.u8(uint8(len(s.qualityEntries)))
	for _, e := range s.qualityEntries {
		w.str(e)
	}
	w.str(s.drmData)
	w.str(s.metadata)
	w.u8(uint8(len(s.segmentTables)))
	for _, t := range s.segmentTables {
		w.Write(t)
	}
	w.u8(uint8(len(s.fragmentTables)))
	for _, t := range s.fragmentTables {
		w.Write(t)
	}
	return box("abst", w.Bytes())
}

// sampleBootstrap is a five fragment recorded stream: one server entry,
// a single segment holding five fragments of 2000 ticks each.
func sampleBootstrap() []byte {
	return abstBox(bootstrapSpec{
		bootstrapInfoVersion: 14,
		profile:              0,
		timescale:            1000,
		currentMediaTime:     10000,
		movieIdentifier:      "streams/hd",
		serverEntries:        []string{"rtmp://example/"},
		segmentTables:        [][]byte{asrtBox(nil, [][2]uint32{{1, 5}})},
		fragmentTables:       [][]byte{afrtBox(1000, nil, []fragmentRun{{first: 1, timestamp: 0, duration: 2000}})},
	})
}
