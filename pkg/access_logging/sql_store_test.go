package access_logging_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
)

func openStore(t *testing.T) *access_logging.SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "access.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := access_logging.NewSQLStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLStore_Write(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Migrate(ctx), "migrate is idempotent")
	require.NoError(t, store.Write(ctx, aliceEntry()))

	grants, err := store.GrantsFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, grants, 4)

	assert.Equal(t, "2024-05-01T12:30:00.123456Z", grants[0].RunTimestamp)
	assert.True(t, grants[0].IsCluster)
	assert.Equal(t, "pods", grants[0].Resource)
	assert.Equal(t, "readers", grants[0].BindingName)
	assert.Equal(t, "ClusterRole", grants[0].RoleKind)

	assert.False(t, grants[3].IsCluster)
	assert.Equal(t, "dev", grants[3].Namespace)
	assert.Equal(t, "secret-reader", grants[3].RoleName)
}

func TestSQLStore_WriteEmptyEntry(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Write(ctx, access_logging.NewEntry("bob", nil, nil, runTime)))

	grants, err := store.GrantsFor(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestSQLStore_AsEmitterSink(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	e, err := access_logging.NewEmitter(nil, "", nil, store)
	require.NoError(t, err)
	require.NoError(t, e.Emit(ctx, aliceEntry()))

	grants, err := store.GrantsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, grants, 4)
}
