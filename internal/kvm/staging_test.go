package kvm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/kvmigrate/internal/remote"
	"github.com/javanstorm/kvmigrate/internal/testutil"
	"github.com/javanstorm/kvmigrate/pkg/hypervisor"
)

func TestMigrationPathIsMemoized(t *testing.T) {
	f := newFixture(t, nil)
	f.withMount(t)

	first, err := f.o.MigrationPath()
	require.NoError(t, err)
	second, err := f.o.MigrationPath()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.True(t, strings.HasPrefix(first, "/mnt/storage/migration/"), first)
	require.True(t, strings.HasSuffix(first, "/"), first)
	id := strings.TrimSuffix(strings.TrimPrefix(first, "/mnt/storage/migration/"), "/")
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "identifier %q", id)
}

func TestMigrationPathNeedsMount(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.o.MigrationPath()
	require.ErrorIs(t, err, hypervisor.ErrEmptyMountPoint)
}

func TestResolveMountPointCachesNonEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("mount", testutil.OK("/mnt/storage\n/mnt/storage2\n"))

	for i := 0; i < 2; i++ {
		mp, err := f.o.ResolveMountPoint(context.Background(), testHost)
		require.NoError(t, err)
		assert.Equal(t, "/mnt/storage", mp)
	}
	assert.Len(t, f.exec.Calls, 1)
}

func TestPrepareStaging(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("mount", testutil.OK("/mnt/storage"))

	require.NoError(t, f.o.PrepareStaging(context.Background(), testHost))

	path, err := f.o.MigrationPath()
	require.NoError(t, err)
	assert.Equal(t, []string{mountPointCommand, "sudo mkdir -p " + remote.Quote(path)}, f.exec.Commands())
}

func TestPrepareStagingEmptyMount(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("mount", testutil.OK(""))

	err := f.o.PrepareStaging(context.Background(), testHost)
	require.ErrorIs(t, err, hypervisor.ErrEmptyMountPoint)
	for _, cmd := range f.exec.Commands() {
		assert.NotContains(t, cmd, "mkdir")
	}

	// An empty answer is not cached; the next call asks again.
	_, err = f.o.ResolveMountPoint(context.Background(), testHost)
	require.NoError(t, err)
	assert.Len(t, f.exec.Calls, 2)
}

func TestPrepareStagingUnreachable(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("mount", testutil.Unreachable())

	err := f.o.PrepareStaging(context.Background(), testHost)
	require.Error(t, err)
	assert.True(t, remote.IsTransport(err))
	assert.Len(t, f.exec.Calls, 1)
}

func TestDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) {
		cfg.DryRun = true
		cfg.PostEmptyScript = "/scripts/post-empty.sh"
	})

	require.NoError(t, f.o.PrepareStaging(context.Background(), testHost))
	require.NoError(t, f.o.PushHelperScripts(context.Background(), testHost))
	assert.Empty(t, f.exec.Calls)
	assert.Empty(t, f.exec.Uploads)
}

func TestPushHelperScripts(t *testing.T) {
	helpers := t.TempDir()
	testutil.WriteScript(t, helpers, "virt-customize-linux.sh")
	testutil.WriteScript(t, helpers, "utc.reg")
	require.NoError(t, os.Mkdir(filepath.Join(helpers, "subdir"), 0755))
	hook := testutil.WriteScript(t, t.TempDir(), "post-empty.sh")

	f := newFixture(t, func(cfg *hypervisor.JobConfig) {
		cfg.HelperScriptsPath = helpers
		cfg.PostEmptyScript = hook
	})
	f.withMount(t)
	path, err := f.o.MigrationPath()
	require.NoError(t, err)

	require.NoError(t, f.o.PushHelperScripts(context.Background(), testHost))

	var remotes []string
	for _, u := range f.exec.Uploads {
		remotes = append(remotes, u.RemotePath)
		assert.True(t, u.Sudo, u.RemotePath)
		assert.Equal(t, os.FileMode(0755), u.Mode, u.RemotePath)
	}
	assert.Equal(t, []string{
		path + "utc.reg",
		path + "virt-customize-linux.sh",
		"/tmp/post-empty.sh",
		"/tmp/kvm_check_bonds.sh",
	}, remotes)
	assert.Empty(t, f.exec.Calls)
}

func TestPushHelperScriptsAbortsOnFailure(t *testing.T) {
	hook := testutil.WriteScript(t, t.TempDir(), "post-reboot.sh")
	f := newFixture(t, func(cfg *hypervisor.JobConfig) { cfg.PostRebootScript = hook })
	boom := errors.New("permission denied")
	f.exec.FailUpload(hook, boom)

	err := f.o.PushHelperScripts(context.Background(), testHost)
	require.Error(t, err)
	assert.Equal(t, boom, errors.Cause(err))
	require.Len(t, f.exec.Uploads, 1, "bond check script must not be uploaded after a failure")
}

func TestPushHostScriptsNeedsNoMigrationFolder(t *testing.T) {
	hook := testutil.WriteScript(t, t.TempDir(), "post-empty.sh")
	f := newFixture(t, func(cfg *hypervisor.JobConfig) {
		cfg.HelperScriptsPath = t.TempDir()
		cfg.PostEmptyScript = hook
	})

	require.NoError(t, f.o.PushHostScripts(context.Background(), testHost))

	var remotes []string
	for _, u := range f.exec.Uploads {
		remotes = append(remotes, u.RemotePath)
	}
	assert.Equal(t, []string{"/tmp/post-empty.sh", "/tmp/kvm_check_bonds.sh"}, remotes)
	assert.Empty(t, f.exec.Calls, "no mount lookup or mkdir")
}

func TestPushHostScriptsDryRun(t *testing.T) {
	f := newFixture(t, func(cfg *hypervisor.JobConfig) {
		cfg.DryRun = true
		cfg.PreEmptyScript = "/scripts/pre-empty.sh"
	})

	require.NoError(t, f.o.PushHostScripts(context.Background(), testHost))
	assert.Empty(t, f.exec.Uploads)
}
