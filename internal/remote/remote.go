// Package remote runs commands on and copies files to hypervisor hosts.
package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Target addresses one host as one principal.
type Target struct {
	Address string
	User    string
	Port    int
}

// String returns user@address:port.
func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.User, t.hostPort())
}

func (t Target) hostPort() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Address, strconv.Itoa(port))
}

// Request is a single remote shell command.
type Request struct {
	// Command is the shell command line.
	Command string

	// Sudo runs the whole command line through sudo.
	Sudo bool

	// Timeout bounds the command (0 = bounded by ctx only).
	Timeout time.Duration
}

// CommandLine returns the line actually sent to the remote shell.
func (r Request) CommandLine() string {
	if !r.Sudo {
		return r.Command
	}
	return "sudo sh -c " + Quote(r.Command)
}

// Upload copies one local file to the remote host.
type Upload struct {
	LocalPath  string
	RemotePath string
	Mode       os.FileMode
	Sudo       bool
}

// Executor is the transport every remote step funnels through.
//
// Run returns the command's stdout with trailing newlines removed. A failed
// call returns either a *TransportError or a *CommandError.
type Executor interface {
	Run(ctx context.Context, target Target, req Request) (string, error)
	Upload(ctx context.Context, target Target, u Upload) error
}

// PortChecker checks whether a TCP port accepts connections.
type PortChecker interface {
	PortOpen(ctx context.Context, address string, port int) bool
}
