package kvm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/kvmigrate/internal/testutil"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

func TestRebootRefusesNonEmptyHost(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) { cfg.PostEmptyScript = "/hooks/post-empty.sh" })
	f.exec.On(vmCountCommand, testutil.OK("i-2-10-VM\ni-2-11-VM\n"))

	err := f.o.Reboot(context.Background(), testHost, hypervisor.ModeReboot)
	require.ErrorIs(t, err, hypervisor.ErrHostNotEmpty)
	assert.Equal(t, []string{vmCountCommand}, f.exec.Commands())
	assert.Zero(t, f.ports.Calls)
}

func TestRebootWaitsForHost(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) {
		cfg.PostEmptyScript = "/hooks/post-empty.sh"
		cfg.PostRebootScript = "/hooks/post-reboot.sh"
	})
	f.exec.On(vmCountCommand, testutil.OK(""))
	f.exec.On("shutdown", testutil.Unreachable())
	f.exec.On("virsh list", testutil.Fail(1, "libvirtd not running"), testutil.OK(""))
	// Offline at the first check, then two misses before SSH answers.
	f.ports.Results = []bool{false, false, false, true}

	var states []HostState
	f.o.AddListener(HostStateEvent, func(arguments ...interface{}) {
		states = append(states, arguments[1].(HostState))
	})

	require.NoError(t, f.o.Reboot(context.Background(), testHost, hypervisor.ModeReboot))

	assert.Equal(t, 4, f.ports.Calls)
	assert.Equal(t, []time.Duration{
		hypervisor.DefaultPollInterval,
		hypervisor.DefaultPollInterval,
		hypervisor.DefaultSettleDelay,
		hypervisor.DefaultPollInterval,
	}, f.sleeper.Durations())

	assert.Equal(t, []string{
		vmCountCommand,
		"/tmp/post-empty.sh",
		"shutdown -r 1",
		"virsh list",
		"virsh list",
		"/tmp/post-reboot.sh",
	}, f.exec.Commands())
	for _, c := range f.exec.Calls[1:] {
		assert.True(t, c.Request.Sudo, c.Request.Command)
	}
	assert.Equal(t, transitionTimeout, f.exec.Calls[2].Request.Timeout)

	assert.Equal(t, []HostState{
		StateRunning, StateDrainChecked, StateRebooting, StateOffline,
		StateWaitingForSSH, StateWaitingForVirt, StateReady,
	}, states)
}

func TestRebootModes(t *testing.T) {
	tests := []struct {
		mode    hypervisor.RebootMode
		command string
		state   HostState
	}{
		{hypervisor.ModeReboot, "shutdown -r 1", StateRebooting},
		{hypervisor.ModeHalt, "shutdown -h 1", StateHalting},
		{hypervisor.ModeForceReset, "sync; echo b > /proc/sysrq-trigger", StateForceResetting},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			f := newFixture(t, nil)
			f.exec.On(vmCountCommand, testutil.OK(""))
			f.ports.Results = []bool{false, true}

			var states []HostState
			f.o.AddListener(HostStateEvent, func(arguments ...interface{}) {
				states = append(states, arguments[1].(HostState))
			})

			require.NoError(t, f.o.Reboot(context.Background(), testHost, tt.mode))
			cmds := f.exec.Commands()
			require.GreaterOrEqual(t, len(cmds), 2)
			assert.Equal(t, tt.command, cmds[1])
			assert.Contains(t, states, tt.state)
		})
	}
}

func TestRebootHookFailureAborts(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) { cfg.PostEmptyScript = "/hooks/post-empty.sh" })
	f.exec.On(vmCountCommand, testutil.OK(""))
	f.exec.On("post-empty.sh", testutil.Fail(2, ""))

	err := f.o.Reboot(context.Background(), testHost, hypervisor.ModeReboot)
	require.ErrorIs(t, err, hypervisor.ErrHookScriptFailed)
	for _, cmd := range f.exec.Commands() {
		assert.NotContains(t, cmd, "shutdown")
	}
}

func TestRebootPostRebootHookFailure(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) { cfg.PostRebootScript = "/hooks/post-reboot.sh" })
	f.exec.On(vmCountCommand, testutil.OK(""))
	f.exec.On("post-reboot.sh", testutil.Fail(1, "bad"))
	f.ports.Results = []bool{false, true}

	err := f.o.Reboot(context.Background(), testHost, hypervisor.ModeReboot)
	require.ErrorIs(t, err, hypervisor.ErrHookScriptFailed)
}

func TestRebootLivenessTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On(vmCountCommand, testutil.OK(""))
	f.ports.Results = []bool{false, false}
	f.sleeper.Limit = 3
	f.sleeper.Err = context.DeadlineExceeded

	err := f.o.Reboot(context.Background(), testHost, hypervisor.ModeReboot)
	require.ErrorIs(t, err, hypervisor.ErrLivenessTimeout)
	assert.Len(t, f.sleeper.Durations(), 3)
}

func TestRebootHonoursCancellation(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On(vmCountCommand, testutil.OK(""))
	f.ports.Results = []bool{true}

	ctx, cancel := context.WithCancel(context.Background())
	f.o.AddListener(HostStateEvent, func(arguments ...interface{}) {
		if arguments[1].(HostState) == StateRebooting {
			cancel()
		}
	})

	err := f.o.Reboot(ctx, testHost, hypervisor.ModeReboot)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunPreEmptyHook(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) { cfg.PreEmptyScript = "/local/hooks/pre-empty.sh" })

	require.NoError(t, f.o.RunPreEmptyHook(context.Background(), testHost))
	require.Len(t, f.exec.Calls, 1)
	assert.Equal(t, "/tmp/pre-empty.sh", f.exec.Calls[0].Request.Command)
	assert.True(t, f.exec.Calls[0].Request.Sudo)
}

func TestHookPathIsQuoted(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) { cfg.PreEmptyScript = "/local/hooks/pre empty;reboot.sh" })

	require.NoError(t, f.o.RunPreEmptyHook(context.Background(), testHost))
	require.Len(t, f.exec.Calls, 1)
	assert.Equal(t, "'/tmp/pre empty;reboot.sh'", f.exec.Calls[0].Request.Command)
}

func TestUnsetHookIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.o.RunPreEmptyHook(context.Background(), testHost))
	assert.Empty(t, f.exec.Calls)
}

func TestHostStateString(t *testing.T) {
	for s := StateRunning; s <= StateReady; s++ {
		assert.NotEqual(t, "unknown", s.String())
		assert.False(t, strings.Contains(s.String(), " "))
	}
	assert.Equal(t, "unknown", HostState(99).String())
}
