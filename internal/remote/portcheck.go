package remote

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCPChecker checks ports with a plain TCP connect.
type TCPChecker struct {
	// Timeout bounds a single connection attempt.
	Timeout time.Duration
}

// NewTCPChecker returns a checker with a 3 second connect timeout.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{Timeout: 3 * time.Second}
}

// PortOpen returns true if a TCP connection to address:port succeeds.
func (p *TCPChecker) PortOpen(ctx context.Context, address string, port int) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
