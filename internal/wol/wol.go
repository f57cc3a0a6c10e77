// Package wol sends Wake-on-LAN magic packets. It is a stateless one-shot
// action: the scan engine supplies the MAC and broadcast address, nothing
// here touches fleet state.
package wol

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/HerbHall/lanwarden/pkg/models"
)

// Port is the conventional Wake-on-LAN discard port.
const Port = 9

// MagicPacket builds the 102-byte wake payload: six 0xff bytes followed by
// the target MAC repeated sixteen times.
func MagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(models.NormalizeMAC(mac))
	if err != nil {
		return nil, fmt.Errorf("parse mac %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("mac %q: want 48-bit address, got %d bytes", mac, len(hw))
	}

	payload := make([]byte, 0, 6+16*6)
	for i := 0; i < 6; i++ {
		payload = append(payload, 0xff)
	}
	for i := 0; i < 16; i++ {
		payload = append(payload, hw...)
	}
	return payload, nil
}

// Sender emits magic packets over UDP broadcast.
type Sender struct {
	timeout time.Duration
	port    int
}

// NewSender creates a sender with the given write timeout.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Sender{timeout: timeout, port: Port}
}

// Send wakes the device with the given MAC. An empty broadcast address falls
// back to the limited broadcast 255.255.255.255.
func (s *Sender) Send(ctx context.Context, mac, broadcast string) error {
	payload, err := MagicPacket(mac)
	if err != nil {
		return err
	}

	if broadcast == "" {
		broadcast = "255.255.255.255"
	}
	addr := net.JoinHostPort(broadcast, fmt.Sprintf("%d", s.port))

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline) //nolint:errcheck
	} else {
		conn.SetWriteDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send magic packet to %s: %w", addr, err)
	}
	return nil
}
