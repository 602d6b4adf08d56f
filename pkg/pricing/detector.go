package pricing

import (
	"context"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const regionLabel = "topology.kubernetes.io/region"

// DetectProvider guesses the cloud from the first node's provider ID and labels
func DetectProvider(ctx context.Context, clientset kubernetes.Interface) (provider string, region string, err error) {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return "default", "unknown", err
	}
	if len(nodes.Items) == 0 {
		return "default", "unknown", nil
	}

	node := nodes.Items[0]
	labels := node.Labels
	region = labels[regionLabel]
	if region == "" {
		region = labels["failure-domain.beta.kubernetes.io/region"]
	}

	providerID := node.Spec.ProviderID
	switch {
	case strings.HasPrefix(providerID, "azure://"), hasLabel(labels, "kubernetes.azure.com/cluster"):
		return "azure", orDefault(region, "eastus"), nil
	case strings.HasPrefix(providerID, "aws://"), hasLabel(labels, "eks.amazonaws.com/nodegroup"):
		return "aws", orDefault(region, "us-east-1"), nil
	case strings.HasPrefix(providerID, "gce://"), hasLabel(labels, "cloud.google.com/gke-nodepool"):
		return "gcp", orDefault(region, "us-central1"), nil
	}

	return "default", orDefault(region, "unknown"), nil
}

func hasLabel(labels map[string]string, key string) bool {
	_, ok := labels[key]
	return ok
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
