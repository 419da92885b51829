package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"inkboard/canvas"
	"inkboard/geometry"
	"inkboard/protocol"
	"inkboard/relay"
)

func startSession(t *testing.T, hub *relay.Hub, user string) *Session {
	t.Helper()
	s := NewSession(Config{RoomID: "r1", UserID: user, Width: 800, Height: 600}, hub.Client(user), nil)
	if err := s.Subscribe(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		s.Close()
		cancel()
	})
	return s
}

// query runs fn on the session loop and waits for its answer.
func query[T any](t *testing.T, s *Session, fn func(e *Engine) T) T {
	t.Helper()
	ch := make(chan T, 1)
	if !s.Do(func(e *Engine) { ch <- fn(e) }) {
		t.Fatal("session closed")
	}
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not answer")
	}
	panic("unreachable")
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func completedIDs(t *testing.T, s *Session) []canvas.StrokeID {
	return query(t, s, func(e *Engine) []canvas.StrokeID { return ids(e.Store.Completed()) })
}

func TestSession_StrokeReachesPeer(t *testing.T) {
	hub := relay.NewHub()
	alice := startSession(t, hub, "alice")
	bob := startSession(t, hub, "bob")

	alice.PointerDown(canvas.PointerEvent{X: 10, Y: 10, Pressure: 0.5})
	alice.PointerMove(canvas.PointerEvent{X: 20, Y: 20, Pressure: 0.5})
	alice.PointerUp(canvas.PointerEvent{})

	eventually(t, func() bool { return len(completedIDs(t, bob)) == 1 })
	if got := completedIDs(t, bob)[0]; got.Owner() != "alice" {
		t.Fatalf("bob has %q", got)
	}
	if got := completedIDs(t, alice); len(got) != 1 {
		t.Fatalf("alice has %v", got)
	}
}

func TestSession_EraseAndUndoPropagate(t *testing.T) {
	hub := relay.NewHub()
	alice := startSession(t, hub, "alice")
	bob := startSession(t, hub, "bob")

	bob.PointerDown(canvas.PointerEvent{X: 100, Y: 100, Pressure: 0.5})
	bob.PointerMove(canvas.PointerEvent{X: 110, Y: 100, Pressure: 0.5})
	bob.PointerUp(canvas.PointerEvent{})
	eventually(t, func() bool { return len(completedIDs(t, alice)) == 1 })

	alice.KeyDown(canvas.KeyEvent{Key: "e"})
	alice.PointerDown(canvas.PointerEvent{X: 105, Y: 100})
	alice.PointerUp(canvas.PointerEvent{})

	eventually(t, func() bool { return len(completedIDs(t, bob)) == 0 })

	// Alice's undo restores the stroke on both sides.
	alice.KeyDown(canvas.KeyEvent{Key: "z", Ctrl: true})
	eventually(t, func() bool { return len(completedIDs(t, alice)) == 1 })
	eventually(t, func() bool { return len(completedIDs(t, bob)) == 1 })
}

func TestSession_LoadMergesOnce(t *testing.T) {
	hub := relay.NewHub()
	s := startSession(t, hub, "alice")

	recs := []protocol.StrokeRecord{{ID: "old:1", Payload: protocol.EndPayload{CurrentStrokes: []geometry.Point{geometry.Pt(1, 1)}}}}
	done := make(chan error, 1)
	s.Load(context.Background(), FetcherFunc(func(ctx context.Context, room string) ([]protocol.StrokeRecord, error) {
		if room != "r1" {
			t.Errorf("room = %q", room)
		}
		return recs, nil
	}), func(err error) { done <- err })

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	n := query(t, s, func(e *Engine) int { return e.History.Len() })
	if n != 1 {
		t.Errorf("history len = %d, want 1", n)
	}
}

func TestSession_LoadFailureReported(t *testing.T) {
	s := startSession(t, relay.NewHub(), "alice")
	boom := errors.New("boom")
	done := make(chan error, 1)
	s.Load(context.Background(), FetcherFunc(func(context.Context, string) ([]protocol.StrokeRecord, error) {
		return nil, boom
	}), func(err error) { done <- err })
	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestSession_LoadAfterCloseReports(t *testing.T) {
	s := startSession(t, relay.NewHub(), "alice")
	release := make(chan struct{})
	done := make(chan error, 1)
	s.Load(context.Background(), FetcherFunc(func(context.Context, string) ([]protocol.StrokeRecord, error) {
		<-release
		return nil, nil
	}), func(err error) { done <- err })

	s.Close()
	close(release)
	select {
	case err := <-done:
		if !errors.Is(err, canvas.ErrLoopClosed) {
			t.Fatalf("err = %v, want ErrLoopClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("done was never called")
	}
}

func TestSession_ClosedIgnoresEvents(t *testing.T) {
	hub := relay.NewHub()
	s := startSession(t, hub, "alice")
	s.Close()
	if s.Do(func(*Engine) {}) {
		t.Fatal("Do after Close should report false")
	}
	if subs := hub.Subscribers(); len(subs) != 0 {
		t.Fatalf("still subscribed: %v", subs)
	}
}

func TestSession_DefaultsUserID(t *testing.T) {
	s := NewSession(Config{RoomID: "r1"}, relay.NewHub().Client("x"), nil)
	if s.UserID() == "" {
		t.Fatal("expected a generated user id")
	}
}
