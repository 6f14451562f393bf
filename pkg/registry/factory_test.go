package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intelliscale/pkg/config"
	"intelliscale/pkg/registry/simulated"
)

func TestNewContainerRegistry(t *testing.T) {
	cfg, err := config.Parse([]byte(""))
	require.NoError(t, err)

	reg, err := NewContainerRegistry(cfg, nil)
	require.NoError(t, err)
	_, ok := reg.(*simulated.Registry)
	assert.True(t, ok)

	cfg.Providers.Registry = "docker"
	_, err = NewContainerRegistry(cfg, nil)
	assert.Error(t, err)
}
