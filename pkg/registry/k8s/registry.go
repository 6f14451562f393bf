package k8s

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"

	"intelliscale/pkg/config"
	"intelliscale/pkg/constants"
	"intelliscale/pkg/interfaces"
	"intelliscale/pkg/logger"
)

const replicaIndexAnnotation = "intelliscale.io/replica-index"

// Registry container registry on Kubernetes pods.
// A primary container is a pod named after the container id; replicas are pods
// cloned from it and labelled with the primary's id.
type Registry struct {
	client    kubernetes.Interface
	namespace string
	template  *corev1.PodTemplateSpec // optional replica pod template
}

var _ interfaces.ContainerRegistry = (*Registry)(nil)

// NewRegistry creates a k8s registry from configuration
func NewRegistry(cfg config.K8sConfig) (*Registry, error) {
	restConfig, err := loadRestConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}

	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %v", err)
	}

	var template *corev1.PodTemplateSpec
	if cfg.PodTemplate != "" {
		template, err = LoadPodTemplate(cfg.PodTemplate)
		if err != nil {
			return nil, err
		}
	}

	return NewRegistryWithClient(client, cfg.Namespace, template), nil
}

// NewRegistryWithClient creates a k8s registry on an existing client
func NewRegistryWithClient(client kubernetes.Interface, namespace string, template *corev1.PodTemplateSpec) *Registry {
	if namespace == "" {
		namespace = "default"
	}
	return &Registry{
		client:    client,
		namespace: namespace,
		template:  template,
	}
}

func loadRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %v", kubeconfig, err)
		}
		return cfg, nil
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		// If not in cluster, try to use kubeconfig
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		configOverrides := &clientcmd.ConfigOverrides{}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides)
		cfg, err = kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to get kubernetes config: %v", err)
		}
	}
	return cfg, nil
}

// LoadPodTemplate reads a replica pod template from a YAML file
func LoadPodTemplate(path string) (*corev1.PodTemplateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pod template: %w", err)
	}
	return ParsePodTemplate(data)
}

// ParsePodTemplate decodes a PodTemplateSpec from YAML
func ParsePodTemplate(data []byte) (*corev1.PodTemplateSpec, error) {
	var tpl corev1.PodTemplateSpec
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse pod template: %w", err)
	}
	if len(tpl.Spec.Containers) == 0 {
		return nil, fmt.Errorf("pod template has no containers")
	}
	return &tpl, nil
}

// StartReplica creates one more replica pod of the primary
func (r *Registry) StartReplica(ctx context.Context, parentID string) (string, error) {
	primary, err := r.client.CoreV1().Pods(r.namespace).Get(ctx, parentID, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return "", interfaces.ErrContainerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get primary pod %s: %w", parentID, err)
	}
	if primary.Labels[constants.LabelParent] != "" {
		return "", fmt.Errorf("pod %s is a replica, not a primary", parentID)
	}

	existing, err := r.listChildren(ctx, parentID)
	if err != nil {
		return "", err
	}
	next := 1
	for i := range existing {
		if idx := replicaIndex(&existing[i]); idx >= next {
			next = idx + 1
		}
	}

	pod := r.buildReplicaPod(primary, next)
	created, err := r.client.CoreV1().Pods(r.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create replica pod: %w", err)
	}

	logger.InfoCtx(ctx, "created replica pod %s for %s", created.Name, parentID)
	return created.Name, nil
}

func (r *Registry) buildReplicaPod(primary *corev1.Pod, index int) *corev1.Pod {
	podLabels := make(map[string]string, len(primary.Labels)+3)
	for k, v := range primary.Labels {
		podLabels[k] = v
	}

	var spec corev1.PodSpec
	if r.template != nil {
		spec = *r.template.Spec.DeepCopy()
		for k, v := range r.template.Labels {
			podLabels[k] = v
		}
	} else {
		spec = *primary.Spec.DeepCopy()
	}
	// let the scheduler place the replica
	spec.NodeName = ""

	podLabels[constants.LabelParent] = primary.Name
	podLabels[constants.LabelReplica] = "true"
	podLabels[constants.LabelManagedBy] = constants.ManagedByIntelliScale
	if _, ok := podLabels[constants.LabelApp]; !ok {
		podLabels[constants.LabelApp] = primary.Name
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s-replica-%d", primary.Name, index),
			Namespace: r.namespace,
			Labels:    podLabels,
			Annotations: map[string]string{
				replicaIndexAnnotation: strconv.Itoa(index),
			},
		},
		Spec: spec,
	}
}

// StopReplica deletes a replica pod
func (r *Registry) StopReplica(ctx context.Context, replicaID string) error {
	pod, err := r.client.CoreV1().Pods(r.namespace).Get(ctx, replicaID, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return interfaces.ErrContainerNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get replica pod %s: %w", replicaID, err)
	}
	if pod.Labels[constants.LabelParent] == "" {
		return fmt.Errorf("pod %s is a primary, not a replica", replicaID)
	}

	if err := r.client.CoreV1().Pods(r.namespace).Delete(ctx, replicaID, metav1.DeleteOptions{}); err != nil {
		if errors.IsNotFound(err) {
			return interfaces.ErrContainerNotFound
		}
		return fmt.Errorf("failed to delete replica pod %s: %w", replicaID, err)
	}

	logger.InfoCtx(ctx, "deleted replica pod %s", replicaID)
	return nil
}

// ListReplicas returns live replica pod names, oldest first
func (r *Registry) ListReplicas(ctx context.Context, parentID string) ([]string, error) {
	pods, err := r.listChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}

	live := make([]corev1.Pod, 0, len(pods))
	for _, p := range pods {
		if isLive(&p) {
			live = append(live, p)
		}
	}

	sort.SliceStable(live, func(i, j int) bool {
		ti, tj := live[i].CreationTimestamp, live[j].CreationTimestamp
		if !ti.Equal(&tj) {
			return ti.Before(&tj)
		}
		return replicaIndex(&live[i]) < replicaIndex(&live[j])
	})

	names := make([]string, 0, len(live))
	for _, p := range live {
		names = append(names, p.Name)
	}
	return names, nil
}

// ContainerStatus returns pod details
func (r *Registry) ContainerStatus(ctx context.Context, id string) (*interfaces.ContainerInfo, error) {
	pod, err := r.client.CoreV1().Pods(r.namespace).Get(ctx, id, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		return nil, interfaces.ErrContainerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s: %w", id, err)
	}
	return convertPodToInfo(pod), nil
}

// ListContainers returns running pods managed by intelliscale
func (r *Registry) ListContainers(ctx context.Context) ([]*interfaces.ContainerInfo, error) {
	selector := labels.SelectorFromSet(labels.Set{constants.LabelManagedBy: constants.ManagedByIntelliScale})
	list, err := r.client.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	result := make([]*interfaces.ContainerInfo, 0, len(list.Items))
	for i := range list.Items {
		info := convertPodToInfo(&list.Items[i])
		if info.IsRunning() {
			result = append(result, info)
		}
	}
	return result, nil
}

func (r *Registry) listChildren(ctx context.Context, parentID string) ([]corev1.Pod, error) {
	selector := labels.SelectorFromSet(labels.Set{constants.LabelParent: parentID})
	list, err := r.client.CoreV1().Pods(r.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list replica pods of %s: %w", parentID, err)
	}
	return list.Items, nil
}

func isLive(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil {
		return false
	}
	return pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed
}

func replicaIndex(pod *corev1.Pod) int {
	idx, err := strconv.Atoi(pod.Annotations[replicaIndexAnnotation])
	if err != nil {
		return 0
	}
	return idx
}

func convertPodToInfo(pod *corev1.Pod) *interfaces.ContainerInfo {
	info := &interfaces.ContainerInfo{
		ID:        pod.Name,
		ParentID:  pod.Labels[constants.LabelParent],
		Name:      pod.Name,
		Status:    podStatus(pod),
		Labels:    pod.Labels,
		CreatedAt: pod.CreationTimestamp.Time,
	}
	if pod.Status.StartTime != nil {
		started := pod.Status.StartTime.Time
		info.StartedAt = &started
	}
	if len(pod.Spec.Containers) > 0 {
		c := pod.Spec.Containers[0]
		info.Image = c.Image
		info.Port = 80
		if len(c.Ports) > 0 {
			info.Port = int(c.Ports[0].ContainerPort)
		}
	}
	if pod.Status.PodIP != "" && info.Port > 0 {
		info.URL = fmt.Sprintf("http://%s:%d", pod.Status.PodIP, info.Port)
	}
	return info
}

func podStatus(pod *corev1.Pod) constants.ContainerStatus {
	if pod.DeletionTimestamp != nil {
		return constants.ContainerStatusStopped
	}
	switch string(pod.Status.Phase) {
	case constants.PodPhaseRunning:
		return constants.ContainerStatusRunning
	case constants.PodPhaseSucceeded:
		return constants.ContainerStatusStopped
	case constants.PodPhaseFailed:
		return constants.ContainerStatusFailed
	default:
		return constants.ContainerStatusPending
	}
}
