package metricsource

import (
	"fmt"

	"intelliscale/pkg/config"
)

// NewMetricsSource selects the metrics source by providers.metrics
func NewMetricsSource(cfg *config.Config) (*SimulatedSource, error) {
	name := "simulated"
	if cfg != nil && cfg.Providers != nil && cfg.Providers.Metrics != "" {
		name = cfg.Providers.Metrics
	}

	switch name {
	case "simulated":
		return NewSimulatedSource(), nil
	default:
		return nil, fmt.Errorf("unsupported metrics provider: %s", name)
	}
}
