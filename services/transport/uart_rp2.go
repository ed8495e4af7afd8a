//go:build rp2040 || rp2350

package transport

import (
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"pulsecore-go/frame"
)

// UARTLink adapts a uartx port to Link, reassembling fixed-width frames
// from the byte stream. Frame boundaries are implicit: the host always
// writes whole 64-byte frames, so accumulation never needs a resync scan.
type UARTLink struct {
	u    *uartx.UART
	buf  [frame.Size]byte
	fill int
}

func NewUARTLink(u *uartx.UART, baud uint32, tx, rx machine.Pin) (*UARTLink, error) {
	if err := u.Configure(uartx.UARTConfig{BaudRate: baud, TX: tx, RX: rx}); err != nil {
		return nil, err
	}
	return &UARTLink{u: u}, nil
}

// Connected is always true: a bare UART has no enumeration, so host
// presence is assumed and absence shows up as unread reports only.
func (l *UARTLink) Connected() bool { return true }

func (l *UARTLink) PollFrame(buf []byte) bool {
	for l.fill < frame.Size && l.u.Buffered() > 0 {
		b, err := l.u.ReadByte()
		if err != nil {
			return false
		}
		l.buf[l.fill] = b
		l.fill++
	}
	if l.fill < frame.Size {
		return false
	}
	copy(buf, l.buf[:])
	l.fill = 0
	return true
}

func (l *UARTLink) SendFrame(buf [frame.Size]byte) bool {
	n, err := l.u.Write(buf[:])
	return err == nil && n == frame.Size
}
