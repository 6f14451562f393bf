package registry

import (
	"fmt"

	"intelliscale/pkg/config"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/registry/k8s"
	"intelliscale/pkg/registry/simulated"
	"intelliscale/pkg/store/mysql"
)

// NewContainerRegistry creates the container registry selected by providers.registry
func NewContainerRegistry(cfg *config.Config, repo *mysql.ContainerRepository) (interfaces.ContainerRegistry, error) {
	providerType := "simulated"
	if cfg.Providers != nil && cfg.Providers.Registry != "" {
		providerType = cfg.Providers.Registry
	}

	switch providerType {
	case "simulated", "":
		return simulated.NewRegistry(repo, cfg.Simulation.Host), nil
	case "k8s", "kubernetes":
		return k8s.NewRegistry(cfg.K8s)
	default:
		return nil, fmt.Errorf("unsupported container registry type: %s", providerType)
	}
}
