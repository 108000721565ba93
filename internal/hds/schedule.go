package hds

import (
	"errors"
	"time"

	"hds2flv/internal/f4v"
	"hds2flv/internal/models"
)

// liveBit is the live flag inside the bootstrap profile byte: two
// profile bits, then live, then update.
const liveBit = 0x20

// ErrNoFragmentRuns reports a bootstrap whose fragment run table
// contains only markers, leaving nothing addressable.
var ErrNoFragmentRuns = errors.New("bootstrap has no fragment runs")

type span struct {
	from, to uint32 // fragment numbers, to exclusive
}

// Schedule is the download plan derived from one bootstrap: the range
// of fragment numbers that exist right now plus the tables that map a
// number onto its segment and media time.
type Schedule struct {
	// First and Last bound the fragments available, inclusive. Last
	// below First means nothing is available.
	First uint32
	Last  uint32
	// Live mirrors the live bit of the bootstrap profile byte.
	Live bool
	// EndOfStream is set when the table carries the end of
	// presentation marker, so no refresh will yield more fragments.
	EndOfStream bool
	// Modifier is the quality segment URL modifier fragments are
	// addressed with, usually empty.
	Modifier string
	// TimeScale is ticks per second for all timestamps and durations.
	TimeScale uint32
	// CurrentMediaTime is the stream's frontier at decode time.
	CurrentMediaTime uint64

	segmentRuns  []f4v.SegmentRunEntry
	fragmentRuns []f4v.FragmentRunEntry // markers excluded
	skips        []span
}

// BuildSchedule derives the plan from a decoded bootstrap. Multiple
// run tables per bootstrap address per-quality variants; the first of
// each is the one fragment addressing uses.
func BuildSchedule(b *f4v.BootstrapInfo) (*Schedule, error) {
	if len(b.FragmentRunTables) == 0 {
		return nil, ErrNoFragmentRuns
	}
	frt := b.FragmentRunTables[0]

	s := &Schedule{
		Live:             b.Profile&liveBit != 0,
		TimeScale:        frt.TimeScale,
		CurrentMediaTime: b.CurrentMediaTime,
	}
	if s.TimeScale == 0 {
		s.TimeScale = b.TimeScale
	}
	if len(frt.QualitySegmentURLModifiers) > 0 {
		s.Modifier = frt.QualitySegmentURLModifiers[0]
	}
	if len(b.SegmentRunTables) > 0 {
		s.segmentRuns = b.SegmentRunTables[0].SegmentRunEntries
	}

	// Split table entries into fragment runs and markers. A marker
	// with the numbering bit opens a gap reaching to the next run; the
	// end marker caps the stream.
	endCap := uint32(0)
	for i, e := range frt.FragmentRunEntries {
		if e.FragmentDuration > 0 {
			s.fragmentRuns = append(s.fragmentRuns, e)
			continue
		}
		if e.EndOfStream() {
			s.EndOfStream = true
			if e.FirstFragment > 0 && (endCap == 0 || e.FirstFragment-1 < endCap) {
				endCap = e.FirstFragment - 1
			}
			continue
		}
		if e.DiscontinuityIndicator != nil && *e.DiscontinuityIndicator&f4v.DiscontinuityNumbering != 0 {
			to := uint32(0)
			for _, next := range frt.FragmentRunEntries[i+1:] {
				if next.FragmentDuration > 0 {
					to = next.FirstFragment
					break
				}
			}
			if to > e.FirstFragment {
				s.skips = append(s.skips, span{from: e.FirstFragment, to: to})
			} else if e.FirstFragment > 0 {
				// No run follows the gap, nothing exists past it.
				if endCap == 0 || e.FirstFragment-1 < endCap {
					endCap = e.FirstFragment - 1
				}
			}
		}
	}
	if len(s.fragmentRuns) == 0 {
		return nil, ErrNoFragmentRuns
	}

	s.First = s.fragmentRuns[0].FirstFragment
	s.Last = s.lastAvailable()
	if endCap != 0 && endCap < s.Last {
		s.Last = endCap
	}
	return s, nil
}

// lastAvailable computes the newest fragment the bootstrap vouches
// for. Recorded streams trust the segment run totals; live streams
// trust the media time frontier, because the segment table of a live
// bootstrap routinely over- or undershoots the edge.
func (s *Schedule) lastAvailable() uint32 {
	fromSegments := uint32(0)
	if total := s.segmentTotal(); total > 0 {
		fromSegments = s.First + uint32(total) - 1
	}

	fromTime := uint32(0)
	final := s.fragmentRuns[len(s.fragmentRuns)-1]
	if s.CurrentMediaTime > final.FirstFragmentTimestamp {
		elapsed := s.CurrentMediaTime - final.FirstFragmentTimestamp
		complete := elapsed / uint64(final.FragmentDuration)
		if complete > 0 {
			fromTime = final.FirstFragment + uint32(complete) - 1
		} else {
			fromTime = final.FirstFragment
		}
	}

	if s.Live {
		if fromTime > 0 {
			return fromTime
		}
		if fromSegments > 0 {
			return fromSegments
		}
	} else {
		if fromSegments > 0 {
			return fromSegments
		}
		if fromTime > 0 {
			return fromTime
		}
	}
	// A run entry vouches for its first fragment even when both tables
	// say nothing about the edge.
	return final.FirstFragment
}

// segmentTotal totals fragments across the segment run table. An entry
// covers the segments up to the next entry; the final entry counts a
// single segment, since nothing bounds it.
func (s *Schedule) segmentTotal() uint64 {
	var total uint64
	for i, run := range s.segmentRuns {
		segments := uint64(1)
		if i < len(s.segmentRuns)-1 && s.segmentRuns[i+1].FirstSegment > run.FirstSegment {
			segments = uint64(s.segmentRuns[i+1].FirstSegment - run.FirstSegment)
		}
		total += segments * uint64(run.FragmentsPerSegment)
	}
	return total
}

// SegmentFor maps a fragment number onto its segment number by walking
// the cumulative fragments-per-segment runs. Streams without a segment
// run table live in segment 1.
func (s *Schedule) SegmentFor(frag uint32) uint32 {
	if len(s.segmentRuns) == 0 || frag < s.First {
		return 1
	}
	offset := uint64(frag - s.First)
	for i, run := range s.segmentRuns {
		per := uint64(run.FragmentsPerSegment)
		if per == 0 {
			continue
		}
		if i < len(s.segmentRuns)-1 && s.segmentRuns[i+1].FirstSegment > run.FirstSegment {
			segments := uint64(s.segmentRuns[i+1].FirstSegment - run.FirstSegment)
			if offset < segments*per {
				return run.FirstSegment + uint32(offset/per)
			}
			offset -= segments * per
			continue
		}
		// Final run, unbounded.
		return run.FirstSegment + uint32(offset/per)
	}
	return 1
}

// runFor returns the fragment run a number falls in.
func (s *Schedule) runFor(frag uint32) f4v.FragmentRunEntry {
	run := s.fragmentRuns[0]
	for _, e := range s.fragmentRuns {
		if e.FirstFragment > frag {
			break
		}
		run = e
	}
	return run
}

// skipped reports whether a fragment number falls in a numbering gap.
func (s *Schedule) skipped(frag uint32) bool {
	for _, sp := range s.skips {
		if frag >= sp.from && frag < sp.to {
			return true
		}
	}
	return false
}

// FragmentsFrom enumerates the plan starting at the given fragment
// number, in order, gaps skipped. URLs are left for the caller to fill
// in. Passing a number below First starts at First.
func (s *Schedule) FragmentsFrom(from uint32) []models.Fragment {
	if from < s.First {
		from = s.First
	}
	var frags []models.Fragment
	for k := from; k <= s.Last; k++ {
		if s.skipped(k) {
			continue
		}
		run := s.runFor(k)
		frags = append(frags, models.Fragment{
			Segment:   s.SegmentFor(k),
			Number:    k,
			Timestamp: run.FirstFragmentTimestamp + uint64(k-run.FirstFragment)*uint64(run.FragmentDuration),
			Duration:  run.FragmentDuration,
		})
	}
	return frags
}

// Fragments enumerates the whole plan.
func (s *Schedule) Fragments() []models.Fragment {
	return s.FragmentsFrom(s.First)
}

// FragmentInterval is the typical per-fragment wall time, the natural
// refresh cadence for a live stream.
func (s *Schedule) FragmentInterval() time.Duration {
	final := s.fragmentRuns[len(s.fragmentRuns)-1]
	if s.TimeScale == 0 {
		return 4 * time.Second
	}
	return time.Duration(final.FragmentDuration) * time.Second / time.Duration(s.TimeScale)
}
