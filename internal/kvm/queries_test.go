package kvm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/internal/testutil"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

func TestVMCount(t *testing.T) {
	tests := []struct {
		name    string
		resp    testutil.Response
		want    int
		wantErr bool
	}{
		{"empty", testutil.OK(""), 0, false},
		{"blank lines", testutil.OK("\n\n"), 0, false},
		{"busy", testutil.OK("i-2-10-VM\ni-2-11-VM\n\n"), 2, false},
		{"libvirt down", testutil.Fail(1, "error: failed to connect to the hypervisor"), 0, true},
		{"unreachable", testutil.Unreachable(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.exec.On(vmCountCommand, tt.resp)

			got, err := f.o.VMCount(context.Background(), testHost)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, f.exec.Calls[0].Request.Sudo)
		})
	}
}

func TestBondStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("kvm_check_bonds.sh", testutil.OK("OK\n"))

	status, err := f.o.BondStatus(context.Background(), testHost)
	require.NoError(t, err)
	assert.Equal(t, "OK", status)
	assert.Equal(t, `bash /tmp/kvm_check_bonds.sh | awk '{print $1}' | tr -d ":"`, f.exec.Calls[0].Request.Command)
}

func TestBondStatusFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("kvm_check_bonds.sh", testutil.Fail(127, "bash: /tmp/kvm_check_bonds.sh: No such file"))

	_, err := f.o.BondStatus(context.Background(), testHost)
	require.Error(t, err)
	assert.True(t, remote.IsCommand(err))
}

func TestPatchLevel(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On(patchLevelCommand, testutil.OK("3\n"), testutil.OK("0\n"))

	hosts := []hypervisor.Host{
		{Name: "kvm01", IPAddress: "10.0.0.1"},
		{Name: "kvm02", IPAddress: "10.0.0.2"},
	}
	report, err := f.o.PatchLevel(context.Background(), hosts)
	require.NoError(t, err)
	assert.Equal(t, "kvm01: 3 updates to install \nkvm02: 0 updates to install ", report)
	require.Len(t, f.exec.Calls, 2)
	assert.Equal(t, "10.0.0.2", f.exec.Calls[1].Target.Address)
}

func TestPatchLevelAllOrNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On(patchLevelCommand, testutil.OK("3"), testutil.Unreachable(), testutil.OK("1"))

	hosts := []hypervisor.Host{
		{Name: "kvm01", IPAddress: "10.0.0.1"},
		{Name: "kvm02", IPAddress: "10.0.0.2"},
		{Name: "kvm03", IPAddress: "10.0.0.3"},
	}
	report, err := f.o.PatchLevel(context.Background(), hosts)
	require.Error(t, err)
	assert.Empty(t, report)
	assert.Len(t, f.exec.Calls, 2, "hosts after the failure are not queried")
}
