package transport_test

import (
	"context"
	"errors"
	"sync"

	"cipherchat/internal/transport"
)

type fakeConn struct {
	in     chan []byte
	closed chan struct{}

	mu          sync.Mutex
	written     []string
	closeCode   int
	closeReason string
	readErr     error
	once        sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, &transport.CloseError{Code: transport.CloseAbnormal, Reason: "closed locally"}
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("write on closed conn")
	default:
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// serverClose simulates the peer ending the connection with code.
func (c *fakeConn) serverClose(code int, reason string) {
	c.mu.Lock()
	c.readErr = &transport.CloseError{Code: code, Reason: reason}
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
}

func (c *fakeConn) deliver(frame string) { c.in <- []byte(frame) }

func (c *fakeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) closedWith() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

type dialMode int

const (
	dialOK dialMode = iota
	dialFail
	dialBlock
)

type fakeDialer struct {
	mu    sync.Mutex
	mode  dialMode
	urls  []string
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	mode := d.mode
	d.mu.Unlock()

	switch mode {
	case dialFail:
		return nil, errors.New("connection refused")
	case dialBlock:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) setMode(m dialMode) {
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
