package remote

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCommandLine(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"plain", Request{Command: "virsh list"}, "virsh list"},
		{"sudo simple", Request{Command: "uptime", Sudo: true}, "sudo sh -c uptime"},
		{"sudo pipeline", Request{Command: "virsh list | wc -l", Sudo: true}, "sudo sh -c 'virsh list | wc -l'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.CommandLine())
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "/mnt/storage/migration/x/", Quote("/mnt/storage/migration/x/"))
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, "'a b'", Quote("a b"))
	assert.NotContains(t, Quote("a\x00b"), "\x00")
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "root@10.0.0.1:22", Target{Address: "10.0.0.1", User: "root"}.String())
	assert.Equal(t, "admin@kvm1:2222", Target{Address: "kvm1", User: "admin", Port: 2222}.String())
}

func TestErrorClassification(t *testing.T) {
	transport := &TransportError{Target: "root@h:22", Op: "dial", Err: fmt.Errorf("connection refused")}
	command := &CommandError{Command: "false", ExitStatus: 1, Stderr: "boom\n"}

	assert.True(t, IsTransport(errors.Wrap(transport, "step")))
	assert.False(t, IsCommand(transport))
	assert.True(t, IsCommand(errors.Wrap(command, "step")))
	assert.False(t, IsTransport(command))

	assert.Equal(t, `command "false" exited with status 1: boom`, command.Error())
	assert.Contains(t, transport.Error(), "connection refused")
}

func TestTCPCheckerPortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	ports := &TCPChecker{Timeout: time.Second}
	assert.True(t, ports.PortOpen(context.Background(), "127.0.0.1", port))

	ln.Close()
	assert.False(t, ports.PortOpen(context.Background(), "127.0.0.1", port))
}

func TestSSHExecutorDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	exec := NewSSHExecutor(SSHOptions{ConnectTimeout: time.Second})
	_, err = exec.Run(context.Background(), Target{Address: "127.0.0.1", User: "root", Port: port}, Request{Command: "true"})
	require.Error(t, err)
	assert.True(t, IsTransport(err), "got %T: %v", err, err)
}
