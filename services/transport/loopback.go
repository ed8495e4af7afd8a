package transport

import (
	"sync"

	"pulsecore-go/frame"
)

// Loopback is an in-memory Link for host simulation and tests. The host
// side feeds frames with HostSend and collects reports with HostRecv; both
// ends are safe to use from different goroutines.
type Loopback struct {
	mu        sync.Mutex
	in        [][frame.Size]byte
	out       [][frame.Size]byte
	connected bool
}

func NewLoopback() *Loopback {
	return &Loopback{connected: true}
}

// SetConnected simulates host attach/detach.
func (l *Loopback) SetConnected(up bool) {
	l.mu.Lock()
	l.connected = up
	l.mu.Unlock()
}

func (l *Loopback) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// HostSend queues one raw frame toward the device.
func (l *Loopback) HostSend(buf [frame.Size]byte) {
	l.mu.Lock()
	l.in = append(l.in, buf)
	l.mu.Unlock()
}

// HostRecv pops the oldest device report, if any.
func (l *Loopback) HostRecv() ([frame.Size]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.out) == 0 {
		return [frame.Size]byte{}, false
	}
	buf := l.out[0]
	l.out = l.out[1:]
	return buf, true
}

func (l *Loopback) PollFrame(buf []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.in) == 0 {
		return false
	}
	copy(buf, l.in[0][:])
	l.in = l.in[1:]
	return true
}

func (l *Loopback) SendFrame(buf [frame.Size]byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return false
	}
	l.out = append(l.out, buf)
	return true
}
