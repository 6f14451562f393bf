package simulated

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
	"intelliscale/pkg/store/mysql"
)

// Registry container registry backed by the containers table.
// Replicas are child rows of a primary; nothing is actually started.
type Registry struct {
	repo *mysql.ContainerRepository
	host string
	now  func() time.Time
}

var (
	_ interfaces.ContainerRegistry  = (*Registry)(nil)
	_ interfaces.ContainerRegistrar = (*Registry)(nil)
)

// NewRegistry creates simulated registry
func NewRegistry(repo *mysql.ContainerRepository, host string) *Registry {
	if host == "" {
		host = "localhost"
	}
	return &Registry{
		repo: repo,
		host: host,
		now:  time.Now,
	}
}

// RegisterContainer declares a running primary container
func (r *Registry) RegisterContainer(ctx context.Context, req *interfaces.RegisterContainerRequest) (*interfaces.ContainerInfo, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if req.Port < 1 || req.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", req.Port)
	}

	id := req.ID
	if id == "" {
		id = "ctr-" + uuid.New().String()[:8]
	}
	url := req.URL
	if url == "" {
		url = r.urlFor(req.Port)
	}

	now := r.now()
	c := &mysql.Container{
		ID:        id,
		UserID:    req.UserID,
		Name:      req.Name,
		Image:     req.Image,
		Port:      req.Port,
		URL:       url,
		Status:    string(constants.ContainerStatusRunning),
		Labels:    mysql.StringMapToJSONMap(req.Labels),
		StartedAt: &now,
	}
	if err := r.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to register container: %w", err)
	}

	logger.InfoCtx(ctx, "registered container %s (%s) at %s", c.ID, c.Name, c.URL)
	return mysql.ToContainerDomain(c), nil
}

// StartReplica starts one more replica of the primary
func (r *Registry) StartReplica(ctx context.Context, parentID string) (string, error) {
	parent, err := r.repo.Get(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to get container %s: %w", parentID, err)
	}
	if parent == nil {
		return "", interfaces.ErrContainerNotFound
	}
	if parent.ParentID != nil {
		return "", fmt.Errorf("container %s is a replica, not a primary", parentID)
	}
	if parent.Status != string(constants.ContainerStatusRunning) {
		return "", fmt.Errorf("primary %s is %s", parentID, parent.Status)
	}

	idx, err := r.repo.MaxReplicaIndex(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to get replica index: %w", err)
	}
	idx++

	port := parent.Port + idx
	now := r.now()
	labels := mysql.JSONMap{}
	for k, v := range parent.Labels {
		labels[k] = v
	}
	labels[constants.LabelParent] = parentID

	replica := &mysql.Container{
		ID:           fmt.Sprintf("%s-replica-%d", parentID, idx),
		ParentID:     &parent.ID,
		UserID:       parent.UserID,
		Name:         fmt.Sprintf("%s-replica-%d", parent.Name, idx),
		Image:        parent.Image,
		Port:         port,
		URL:          r.urlFor(port),
		Status:       string(constants.ContainerStatusRunning),
		ReplicaIndex: idx,
		Labels:       labels,
		StartedAt:    &now,
	}
	if err := r.repo.Create(ctx, replica); err != nil {
		return "", fmt.Errorf("failed to create replica: %w", err)
	}

	logger.InfoCtx(ctx, "started replica %s of %s on port %d", replica.ID, parentID, port)
	return replica.ID, nil
}

// StopReplica stops a running replica
func (r *Registry) StopReplica(ctx context.Context, replicaID string) error {
	c, err := r.repo.Get(ctx, replicaID)
	if err != nil {
		return fmt.Errorf("failed to get replica %s: %w", replicaID, err)
	}
	if c == nil {
		return interfaces.ErrContainerNotFound
	}
	if c.ParentID == nil {
		return fmt.Errorf("container %s is a primary, not a replica", replicaID)
	}

	stopped, err := r.repo.MarkStopped(ctx, replicaID, r.now())
	if err != nil {
		return fmt.Errorf("failed to stop replica %s: %w", replicaID, err)
	}
	if !stopped {
		return fmt.Errorf("replica %s is not running", replicaID)
	}

	logger.InfoCtx(ctx, "stopped replica %s of %s", replicaID, *c.ParentID)
	return nil
}

// ListReplicas returns running replica ids, oldest first
func (r *Registry) ListReplicas(ctx context.Context, parentID string) ([]string, error) {
	children, err := r.repo.ListChildren(ctx, parentID, string(constants.ContainerStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas of %s: %w", parentID, err)
	}
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// ContainerStatus returns container details
func (r *Registry) ContainerStatus(ctx context.Context, id string) (*interfaces.ContainerInfo, error) {
	c, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get container %s: %w", id, err)
	}
	if c == nil {
		return nil, interfaces.ErrContainerNotFound
	}
	return mysql.ToContainerDomain(c), nil
}

// ListContainers returns running containers
func (r *Registry) ListContainers(ctx context.Context) ([]*interfaces.ContainerInfo, error) {
	rows, err := r.repo.ListByStatus(ctx, string(constants.ContainerStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	result := make([]*interfaces.ContainerInfo, 0, len(rows))
	for _, c := range rows {
		result = append(result, mysql.ToContainerDomain(c))
	}
	return result, nil
}

func (r *Registry) urlFor(port int) string {
	return fmt.Sprintf("http://%s:%d", r.host, port)
}
