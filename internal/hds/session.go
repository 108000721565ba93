package hds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hds2flv/internal/f4v"
	"hds2flv/internal/logger"
	"hds2flv/internal/models"
)

// FragmentSink consumes mdat payloads in stream order.
type FragmentSink interface {
	WriteFragment(mdat []byte) error
}

// ErrNoFragments reports a recorded stream whose bootstrap yields an
// empty download plan.
var ErrNoFragments = errors.New("bootstrap describes no downloadable fragments")

// SessionConfig wires a recording session together.
type SessionConfig struct {
	Logger     logger.Logger
	Downloader *Downloader
	Sink       FragmentSink
	Schedule   *Schedule
	// BaseURL and MediaURL address fragments, combined with the
	// schedule's quality modifier.
	BaseURL  string
	MediaURL string
	// Window caps the number of fragments in flight.
	Window int
	// RefreshBootstrap re-fetches the bootstrap so a live session can
	// chase the edge. nil disables following; the session then records
	// the currently available window and returns.
	RefreshBootstrap func(ctx context.Context) (*f4v.BootstrapInfo, error)
	// RefreshInterval overrides the cadence derived from the fragment
	// duration.
	RefreshInterval time.Duration
}

// Session drives one recording: it enumerates the schedule, keeps the
// downloader's queue topped up, restores arrival order and feeds each
// fragment's mdat payload to the sink.
type Session struct {
	logger          logger.Logger
	down            *Downloader
	sink            FragmentSink
	schedule        *Schedule
	baseURL         string
	mediaURL        string
	window          int
	refresh         func(ctx context.Context) (*f4v.BootstrapInfo, error)
	refreshInterval time.Duration

	results chan DownloadResult
	pending map[uint32][]byte

	written        int
	currentSegment uint32
}

// NewSession validates the wiring and builds a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Downloader == nil || cfg.Sink == nil || cfg.Schedule == nil {
		return nil, errors.New("session needs a downloader, a sink and a schedule")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	window := cfg.Window
	if window < 1 {
		window = 8
	}
	return &Session{
		logger:          log,
		down:            cfg.Downloader,
		sink:            cfg.Sink,
		schedule:        cfg.Schedule,
		baseURL:         cfg.BaseURL,
		mediaURL:        cfg.MediaURL,
		window:          window,
		refresh:         cfg.RefreshBootstrap,
		refreshInterval: cfg.RefreshInterval,
		results:         make(chan DownloadResult, window),
		pending:         make(map[uint32][]byte),
	}, nil
}

// FragmentsWritten returns how many fragments reached the sink.
func (s *Session) FragmentsWritten() int {
	return s.written
}

// live reports whether the session keeps chasing a growing stream.
func (s *Session) live() bool {
	return s.schedule.Live && s.refresh != nil
}

func (s *Session) plan(from uint32) []models.Fragment {
	frags := s.schedule.FragmentsFrom(from)
	for i := range frags {
		frags[i].URL = FragmentURL(s.baseURL, s.mediaURL, s.schedule.Modifier, frags[i].Segment, frags[i].Number)
	}
	return frags
}

// Run records until the plan is exhausted, the stream ends or ctx is
// cancelled. A failed fragment aborts a recorded stream; on a live
// stream it is logged and skipped so the recording keeps up with the
// edge.
func (s *Session) Run(ctx context.Context) error {
	queue := s.plan(s.schedule.First)
	if len(queue) == 0 && !s.live() {
		return ErrNoFragments
	}
	s.logger.Infof("Recording %s: fragments %d..%d (%d queued), live=%v",
		s.mediaURL, s.schedule.First, s.schedule.Last, len(queue), s.schedule.Live)

	nextQueue := 0
	writeIdx := 0
	outstanding := 0

	for {
		for outstanding < s.window && nextQueue < len(queue) {
			s.down.QueueDownload(DownloadTask{Fragment: queue[nextQueue], Result: s.results})
			nextQueue++
			outstanding++
		}

		if writeIdx >= len(queue) {
			// Plan exhausted and everything written.
			if s.schedule.EndOfStream {
				s.logger.Infof("Stream ended after %d fragment(s)", s.written)
				return nil
			}
			if !s.live() {
				return nil
			}
			more, err := s.waitAndExtend(ctx)
			if err != nil {
				return err
			}
			if more == nil {
				continue
			}
			queue = append(queue, more...)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-s.results:
			outstanding--
			if err := s.collect(res); err != nil {
				return err
			}
			for writeIdx < len(queue) {
				frag := queue[writeIdx]
				data, ok := s.pending[frag.Number]
				if !ok {
					break
				}
				delete(s.pending, frag.Number)
				if data != nil {
					if err := s.write(frag, data); err != nil {
						return err
					}
				}
				writeIdx++
			}
		}
	}
}

// collect files one download result into the pending buffer. A nil
// payload marks a fragment the live path gave up on.
func (s *Session) collect(res DownloadResult) error {
	frag := res.Task.Fragment
	if res.Error != nil {
		if !s.live() {
			return fmt.Errorf("fragment %s: %w", frag.ID(), res.Error)
		}
		s.logger.Warnf("Skipping fragment %s: %v", frag.ID(), res.Error)
		s.pending[frag.Number] = nil
		return nil
	}
	s.pending[frag.Number] = res.Data
	return nil
}

func (s *Session) write(frag models.Fragment, data []byte) error {
	mdat, err := f4v.MdatPayload(data)
	if err != nil {
		if s.live() {
			s.logger.Warnf("Skipping fragment %s: %v", frag.ID(), err)
			return nil
		}
		return fmt.Errorf("fragment %s: %w", frag.ID(), err)
	}
	if frag.Segment != s.currentSegment {
		s.currentSegment = frag.Segment
		s.logger.Infof("Writing segment %d", frag.Segment)
	}
	if err := s.sink.WriteFragment(mdat); err != nil {
		return fmt.Errorf("fragment %s: %w", frag.ID(), err)
	}
	s.written++
	s.logger.Debugf("Wrote fragment %s (%d bytes)", frag.ID(), len(mdat))
	return nil
}

// waitAndExtend sleeps one refresh interval, re-fetches the bootstrap
// and returns the newly available fragments. A failed refresh is logged
// and retried on the next tick rather than ending the recording.
func (s *Session) waitAndExtend(ctx context.Context) ([]models.Fragment, error) {
	interval := s.refreshInterval
	if interval == 0 {
		interval = s.schedule.FragmentInterval()
	}
	// Do not hammer the origin, whatever the fragment duration says.
	if interval < 2*time.Second {
		interval = 2 * time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	b, err := s.refresh(ctx)
	if err != nil {
		s.logger.Warnf("Bootstrap refresh failed: %v", err)
		return nil, nil
	}
	sched, err := BuildSchedule(b)
	if err != nil {
		s.logger.Warnf("Refreshed bootstrap unusable: %v", err)
		return nil, nil
	}

	prevLast := s.schedule.Last
	s.schedule = sched
	more := s.plan(prevLast + 1)
	if len(more) > 0 {
		s.logger.Debugf("Live edge advanced to fragment %d (+%d)", sched.Last, len(more))
	}
	return more, nil
}
