package canvas

import "time"

// RedrawThrottle is the minimum spacing between two redraws.
const RedrawThrottle = 8 * time.Millisecond

// FrameRequester schedules a callback for the next animation frame.
type FrameRequester interface {
	RequestFrame(fn func()) (cancel func())
}

// Redrawer is what mutating operations call after changing visible state.
type Redrawer interface {
	RequestRedraw()
}

// Scheduler coalesces redraw requests into at most one pending frame.
// Requests inside the throttle window share the pending frame; requests
// after it replace any pending frame with a fresh one.
type Scheduler struct {
	frames   FrameRequester
	now      func() time.Time
	draw     func()
	throttle time.Duration

	last    time.Time
	cancel  func()
	gen     uint64
	redraws int
}

// NewScheduler returns a scheduler that calls draw from frames. A nil now
// uses time.Now.
func NewScheduler(frames FrameRequester, now func() time.Time, draw func()) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{frames: frames, now: now, draw: draw, throttle: RedrawThrottle}
}

// RequestRedraw is the single entry point for every state change that needs
// a repaint.
func (s *Scheduler) RequestRedraw() {
	if !s.last.IsZero() && s.now().Sub(s.last) < s.throttle {
		if s.cancel != nil {
			return
		}
		s.schedule(true)
		return
	}
	s.Cancel()
	s.schedule(false)
}

// Pending reports whether a frame is scheduled.
func (s *Scheduler) Pending() bool { return s.cancel != nil }

// Redraws is the number of draws performed so far.
func (s *Scheduler) Redraws() int { return s.redraws }

// Cancel drops the pending frame, if any.
func (s *Scheduler) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

func (s *Scheduler) schedule(deferred bool) {
	s.gen++
	gen := s.gen
	s.cancel = s.frames.RequestFrame(func() {
		if gen != s.gen {
			return
		}
		s.cancel = nil
		// A deferred frame that fires early waits for the next one
		// rather than dropping the draw.
		if deferred && s.now().Sub(s.last) < s.throttle {
			s.schedule(true)
			return
		}
		s.frame()
	})
}

func (s *Scheduler) frame() {
	s.draw()
	s.last = s.now()
	s.redraws++
}
