package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

func openTemp(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func record(id string, created time.Time) xfertypes.SessionRecord {
	return xfertypes.SessionRecord{
		TransferID:  id,
		Source:      xfertypes.ObjectRef{Endpoint: "east", Object: "big.bin"},
		Destination: xfertypes.ObjectRef{Endpoint: "west", Object: "big.bin"},
		UploadID:    "upload-" + id,
		Size:        205 << 20,
		PartSize:    100 << 20,
		CreatedAt:   created,
	}
}

func TestJournal_Lifecycle(t *testing.T) {
	ctx := context.Background()
	j, _ := openTemp(t)

	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, j.Record(ctx, record("a", base)))
	require.NoError(t, j.Record(ctx, record("b", base.Add(time.Second))))
	require.NoError(t, j.Record(ctx, record("c", base.Add(2*time.Second))))

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "a", pending[0].TransferID)
	assert.Equal(t, xfertypes.SessionOpen, pending[0].State)
	assert.Equal(t, "upload-a", pending[0].Session().UploadID)
	assert.Equal(t, "big.bin", pending[0].Session().Object)
	assert.Equal(t, int64(205<<20), pending[0].Size)
	assert.True(t, base.Equal(pending[0].CreatedAt))

	require.NoError(t, j.Resolve(ctx, "a", xfertypes.SessionCommitted))
	require.NoError(t, j.Resolve(ctx, "b", xfertypes.SessionAborted))

	pending, err = j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].TransferID)

	all, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].TransferID, "newest first")
	assert.Equal(t, xfertypes.SessionAborted, all[1].State)
	assert.Equal(t, xfertypes.SessionCommitted, all[2].State)
}

func TestJournal_ResolveUnknown(t *testing.T) {
	j, _ := openTemp(t)
	err := j.Resolve(context.Background(), "nope", xfertypes.SessionAborted)
	assert.True(t, errors.IsSessionNotFound(err))
}

func TestJournal_DuplicateRecord(t *testing.T) {
	ctx := context.Background()
	j, _ := openTemp(t)
	require.NoError(t, j.Record(ctx, record("a", time.Now())))
	assert.Error(t, j.Record(ctx, record("a", time.Now())))
}

func TestJournal_Reopen(t *testing.T) {
	ctx := context.Background()
	j, path := openTemp(t)
	require.NoError(t, j.Record(ctx, record("a", time.Now())))
	require.NoError(t, j.Close())

	// Migrations are already applied; reopening must keep the data.
	j2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = j2.Close() }()

	pending, err := j2.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].TransferID)
}
