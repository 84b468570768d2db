package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWorkspace_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ws := &Workspace{ID: "ws1", Root: "/repos/example", CreatedAt: time.Unix(1700000000, 0)}
	require.NoError(t, s.RegisterWorkspace(ctx, ws))

	got, err := s.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/repos/example", got.Root)
}

func TestRegisterWorkspace_ConflictUpdatesRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterWorkspace(ctx, &Workspace{ID: "ws1", Root: "/old"}))
	require.NoError(t, s.RegisterWorkspace(ctx, &Workspace{ID: "ws1", Root: "/new"}))

	got, err := s.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	assert.Equal(t, "/new", got.Root)
}

func TestGetWorkspace_MissingReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetWorkspace(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListWorkspaces_OrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterWorkspace(ctx, &Workspace{ID: "later", Root: "/b", CreatedAt: time.Unix(200, 0)}))
	require.NoError(t, s.RegisterWorkspace(ctx, &Workspace{ID: "earlier", Root: "/a", CreatedAt: time.Unix(100, 0)}))

	list, err := s.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "earlier", list[0].ID)
	assert.Equal(t, "later", list[1].ID)
}

func TestRemoveWorkspace_DeletesRegistration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RegisterWorkspace(ctx, &Workspace{ID: "ws1", Root: "/a"}))
	require.NoError(t, s.RemoveWorkspace(ctx, "ws1"))

	got, err := s.GetWorkspace(ctx, "ws1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
