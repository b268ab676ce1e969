package looptransport_test

import (
	"context"
	"testing"
	"time"

	"github.com/signalair/mesh/internal/transport"
	"github.com/signalair/mesh/internal/transport/looptransport"
	"github.com/signalair/mesh/internal/wire"
)

func drainUntil(t *testing.T, ch <-chan transport.Event, kind transport.EventKind) transport.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestJoinAnnouncesExistingMembersBothWays(t *testing.T) {
	t.Parallel()

	hub := looptransport.NewHub()
	a := hub.Join("a")
	b := hub.Join("b")

	drainUntil(t, a.Events(), transport.PeerConnected)
	drainUntil(t, b.Events(), transport.PeerConnected)
}

func TestSendDeliversBytesReceived(t *testing.T) {
	t.Parallel()

	hub := looptransport.NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	drainUntil(t, a.Events(), transport.PeerConnected)
	drainUntil(t, b.Events(), transport.PeerConnected)

	if err := a.Send(context.Background(), "b", []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ev := drainUntil(t, b.Events(), transport.BytesReceived)
	if ev.Peer != wire.PeerID("a") || string(ev.Data) != "hello" {
		t.Fatalf("BytesReceived: got %+v", ev)
	}
}

func TestSendToUnknownPeerErrors(t *testing.T) {
	t.Parallel()

	hub := looptransport.NewHub()
	a := hub.Join("a")

	if err := a.Send(context.Background(), "ghost", []byte("x")); err != looptransport.ErrUnknownPeer {
		t.Fatalf("Send to unknown peer: got %v, want ErrUnknownPeer", err)
	}
}

func TestCloseAnnouncesDisconnectAndRejectsSend(t *testing.T) {
	t.Parallel()

	hub := looptransport.NewHub()
	a := hub.Join("a")
	b := hub.Join("b")
	drainUntil(t, a.Events(), transport.PeerConnected)
	drainUntil(t, b.Events(), transport.PeerConnected)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	drainUntil(t, b.Events(), transport.PeerDisconnected)

	if err := a.Send(context.Background(), "b", []byte("x")); err != looptransport.ErrClosed {
		t.Fatalf("Send after Close: got %v, want ErrClosed", err)
	}

	// Close is idempotent.
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
