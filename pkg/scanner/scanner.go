// Package scanner discovers workloads and their current resource settings.
package scanner

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

const bytesPerMiB = 1024 * 1024

// Workload kinds the scanner lists
const (
	KindDeployment  = "Deployment"
	KindStatefulSet = "StatefulSet"
	KindDaemonSet   = "DaemonSet"
)

// Scanner lists Deployments, StatefulSets and DaemonSets
type Scanner struct {
	client    kubernetes.Interface
	clusterID string

	// SkipNamespaces are ignored when scanning all namespaces
	SkipNamespaces map[string]bool
}

// New creates a scanner. Workloads are tagged with clusterID.
func New(client kubernetes.Interface, clusterID string) *Scanner {
	return &Scanner{
		client:    client,
		clusterID: clusterID,
		SkipNamespaces: map[string]bool{
			"kube-system":     true,
			"kube-public":     true,
			"kube-node-lease": true,
		},
	}
}

// RESTConfig loads a kubeconfig. An empty path follows KUBECONFIG, then ~/.kube/config,
// then the in-cluster service account.
func RESTConfig(kubeconfig string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = kubeconfig

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	return config, nil
}

// NewClients creates the Kubernetes and metrics clientsets
func NewClients(kubeconfig string) (kubernetes.Interface, metricsv.Interface, error) {
	config, err := RESTConfig(kubeconfig)
	if err != nil {
		return nil, nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return clientset, metricsClient, nil
}

// Scan returns one Workload per container in namespace, or in every namespace
func (s *Scanner) Scan(ctx context.Context, namespace string, allNamespaces bool) ([]*models.Workload, error) {
	log := logr.FromContextOrDiscard(ctx)

	namespaces := []string{namespace}
	if allNamespaces {
		nsList, err := s.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list namespaces: %w", err)
		}
		namespaces = namespaces[:0]
		for _, ns := range nsList.Items {
			if s.SkipNamespaces[ns.Name] {
				continue
			}
			namespaces = append(namespaces, ns.Name)
		}
		log.Info("scanning namespaces", "count", len(namespaces))
	} else {
		log.Info("scanning namespace", "namespace", namespace)
	}

	var workloads []*models.Workload
	for _, ns := range namespaces {
		found, err := s.scanNamespace(ctx, ns)
		if err != nil {
			if !allNamespaces {
				return nil, err
			}
			log.Error(err, "skipping namespace", "namespace", ns)
			continue
		}
		workloads = append(workloads, found...)
	}

	return workloads, nil
}

func (s *Scanner) scanNamespace(ctx context.Context, namespace string) ([]*models.Workload, error) {
	deployments, err := s.client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	statefulSets, err := s.client.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list statefulsets: %w", err)
	}

	daemonSets, err := s.client.AppsV1().DaemonSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list daemonsets: %w", err)
	}

	environment := ClassifyNamespace(ctx, s.client, namespace)
	hpas := s.autoscaledTargets(ctx, namespace)

	var workloads []*models.Workload
	add := func(kind, name string, spec corev1.PodSpec) {
		for _, c := range spec.Containers {
			workloads = append(workloads, &models.Workload{
				ClusterID:   s.clusterID,
				Namespace:   namespace,
				Kind:        kind,
				Name:        name,
				Container:   c.Name,
				Environment: environment,
				HPA:         hpas[kind+"/"+name],
				Resources:   containerResources(c),
			})
		}
	}

	for _, d := range deployments.Items {
		add(KindDeployment, d.Name, d.Spec.Template.Spec)
	}
	for _, sts := range statefulSets.Items {
		add(KindStatefulSet, sts.Name, sts.Spec.Template.Spec)
	}
	for _, ds := range daemonSets.Items {
		add(KindDaemonSet, ds.Name, ds.Spec.Template.Spec)
	}

	return workloads, nil
}

// autoscaledTargets maps kind/name to the HPA scaling it. Listing failures are ignored.
func (s *Scanner) autoscaledTargets(ctx context.Context, namespace string) map[string]string {
	targets := make(map[string]string)

	hpaList, err := s.client.AutoscalingV2().HorizontalPodAutoscalers(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		logr.FromContextOrDiscard(ctx).V(1).Info("cannot list HPAs", "namespace", namespace, "error", err.Error())
		return targets
	}

	for _, hpa := range hpaList.Items {
		ref := hpa.Spec.ScaleTargetRef
		targets[ref.Kind+"/"+ref.Name] = hpa.Name
	}
	return targets
}

// containerResources converts quantities to millicores and MiB, rounding memory up
func containerResources(c corev1.Container) models.ContainerResources {
	var r models.ContainerResources

	if cpu, ok := c.Resources.Requests[corev1.ResourceCPU]; ok {
		r.CPURequest = cpu.MilliValue()
	}
	if cpu, ok := c.Resources.Limits[corev1.ResourceCPU]; ok {
		r.CPULimit = cpu.MilliValue()
	}
	if mem, ok := c.Resources.Requests[corev1.ResourceMemory]; ok {
		r.MemoryRequest = toMiB(mem.Value())
	}
	if mem, ok := c.Resources.Limits[corev1.ResourceMemory]; ok {
		r.MemoryLimit = toMiB(mem.Value())
	}

	return r
}

func toMiB(bytes int64) int64 {
	return (bytes + bytesPerMiB - 1) / bytesPerMiB
}
