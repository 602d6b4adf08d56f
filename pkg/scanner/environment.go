package scanner

import (
	"context"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// ClassifyNamespace determines the environment of a namespace from its labels, then its name
func ClassifyNamespace(ctx context.Context, client kubernetes.Interface, namespace string) models.Environment {
	ns, err := client.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err == nil && ns.Labels != nil {
		if env, exists := ns.Labels["environment"]; exists {
			return normalizeEnvironment(env)
		}

		if tier, exists := ns.Labels["tier"]; exists {
			if env := normalizeEnvironment(tier); env != models.EnvironmentUnknown {
				return env
			}
		}
	}

	return detectEnvironmentFromName(namespace)
}

// normalizeEnvironment converts a label value to an Environment
func normalizeEnvironment(label string) models.Environment {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "production", "prod", "prd":
		return models.EnvironmentProduction
	case "staging", "stage", "stg":
		return models.EnvironmentStaging
	case "development", "dev", "test", "testing":
		return models.EnvironmentDevelopment
	default:
		return models.EnvironmentUnknown
	}
}

var namePatterns = []struct {
	env      models.Environment
	patterns []string
}{
	{models.EnvironmentProduction, []string{"prod", "production", "prd"}},
	{models.EnvironmentStaging, []string{"staging", "stage", "stg", "uat"}},
	{models.EnvironmentDevelopment, []string{"dev", "develop", "test", "sandbox", "demo"}},
}

func detectEnvironmentFromName(namespace string) models.Environment {
	name := strings.ToLower(namespace)

	for _, group := range namePatterns {
		for _, pattern := range group.patterns {
			if strings.Contains(name, pattern) {
				return group.env
			}
		}
	}

	return models.EnvironmentUnknown
}
