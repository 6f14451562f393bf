package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"intelliscale/pkg/config"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/registry/simulated"
	"intelliscale/pkg/store/mysql"
)

type testEnv struct {
	repo     *mysql.Repository
	registry *simulated.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ds, err := mysql.NewSQLiteDatastore(":memory:")
	require.NoError(t, err)
	require.NoError(t, ds.AutoMigrate())
	t.Cleanup(func() { ds.Close() })

	repo := mysql.NewRepositoryWithDatastore(ds)
	return &testEnv{
		repo:     repo,
		registry: simulated.NewRegistry(repo.Container, "localhost"),
	}
}

func (e *testEnv) register(t *testing.T, id, url string) *interfaces.ContainerInfo {
	t.Helper()
	info, err := e.registry.RegisterContainer(context.Background(), &interfaces.RegisterContainerRequest{
		ID:     id,
		UserID: 1,
		Name:   id,
		Port:   8000,
		URL:    url,
	})
	require.NoError(t, err)
	return info
}

func testLimits() config.AutoScalerConfig {
	return config.DefaultAutoScalerConfig()
}

func ptr[T any](v T) *T {
	return &v
}
