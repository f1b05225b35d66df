package ws

import (
	"errors"
	"testing"
)

func newBareClient(buffer int) *Client {
	return &Client{
		id:   "test-client",
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func TestSendQueuesUntilBufferFull(t *testing.T) {
	c := newBareClient(2)

	if err := c.Send([]byte("one")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send([]byte("two")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send([]byte("three")); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("Send on full buffer: got %v, want ErrSendBufferFull", err)
	}

	// Draining one slot makes room again.
	<-c.send
	if err := c.Send([]byte("four")); err != nil {
		t.Errorf("Send after drain: %v", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	c := newBareClient(2)
	c.close()

	if err := c.Send([]byte("late")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Send after close: got %v, want ErrClientClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newBareClient(1)
	c.close()
	c.close()

	select {
	case <-c.done:
	default:
		t.Error("done channel not closed")
	}
}
