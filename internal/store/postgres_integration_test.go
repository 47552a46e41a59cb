//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"duffel/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)

	s := NewPostgres(pg.Pool)
	require.NoError(t, s.EnsureSchema(context.Background()))

	testStoreConformance(t, s)
}
