package mysql

import "intelliscale/pkg/config"

// Repository aggregates all repositories
type Repository struct {
	ds *Datastore

	ScalingPolicy *ScalingPolicyRepository
	ScalingEvent  *ScalingEventRepository
	LoadTest      *LoadTestRepository
	Container     *ContainerRepository
}

// NewRepository opens the datastore, migrates the schema and builds all sub-repositories
func NewRepository(cfg config.DatabaseConfig) (*Repository, error) {
	ds, err := NewDatastore(cfg)
	if err != nil {
		return nil, err
	}
	if err := ds.AutoMigrate(); err != nil {
		ds.Close()
		return nil, err
	}
	return NewRepositoryWithDatastore(ds), nil
}

// NewRepositoryWithDatastore builds all sub-repositories on an existing datastore
func NewRepositoryWithDatastore(ds *Datastore) *Repository {
	return &Repository{
		ds:            ds,
		ScalingPolicy: NewScalingPolicyRepository(ds),
		ScalingEvent:  NewScalingEventRepository(ds),
		LoadTest:      NewLoadTestRepository(ds),
		Container:     NewContainerRepository(ds),
	}
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
