package reporter

import (
	"fmt"
	"io"

	autoscalingv1 "k8s.io/api/autoscaling/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	vpav1 "k8s.io/autoscaler/vertical-pod-autoscaler/pkg/apis/autoscaling.k8s.io/v1"
	"sigs.k8s.io/yaml"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// BuildVPAs returns one VerticalPodAutoscaler per workload in recommendation-only mode.
// Each container policy is bounded by the recommended request and limit.
func BuildVPAs(run *models.AnalysisRun) []*vpav1.VerticalPodAutoscaler {
	var vpas []*vpav1.VerticalPodAutoscaler
	byWorkload := make(map[string]*vpav1.VerticalPodAutoscaler)

	for _, row := range run.Results {
		wl := row.Workload

		policy := vpav1.ContainerResourcePolicy{
			ContainerName: wl.Container,
			MinAllowed:    corev1.ResourceList{},
			MaxAllowed:    corev1.ResourceList{},
		}
		var controlled []corev1.ResourceName
		for _, d := range row.Results {
			if d.Recommendation == nil {
				continue
			}
			name := corev1.ResourceName(d.Dimension)
			policy.MinAllowed[name] = *Quantity(d.Dimension, d.Recommendation.RequestValue)
			policy.MaxAllowed[name] = *Quantity(d.Dimension, d.Recommendation.LimitValue)
			controlled = append(controlled, name)
		}
		if len(controlled) == 0 {
			continue
		}
		policy.ControlledResources = &controlled

		key := wl.Namespace + "/" + wl.Kind + "/" + wl.Name
		vpa, ok := byWorkload[key]
		if !ok {
			mode := vpav1.UpdateModeOff
			vpa = &vpav1.VerticalPodAutoscaler{
				TypeMeta: metav1.TypeMeta{
					APIVersion: vpav1.SchemeGroupVersion.String(),
					Kind:       "VerticalPodAutoscaler",
				},
				ObjectMeta: metav1.ObjectMeta{
					Name:      wl.Name,
					Namespace: wl.Namespace,
					Labels:    map[string]string{"app.kubernetes.io/managed-by": "k8s-rightsizer"},
				},
				Spec: vpav1.VerticalPodAutoscalerSpec{
					TargetRef: &autoscalingv1.CrossVersionObjectReference{
						APIVersion: "apps/v1",
						Kind:       wl.Kind,
						Name:       wl.Name,
					},
					UpdatePolicy:   &vpav1.PodUpdatePolicy{UpdateMode: &mode},
					ResourcePolicy: &vpav1.PodResourcePolicy{},
				},
			}
			byWorkload[key] = vpa
			vpas = append(vpas, vpa)
		}
		vpa.Spec.ResourcePolicy.ContainerPolicies = append(vpa.Spec.ResourcePolicy.ContainerPolicies, policy)
	}

	return vpas
}

// WriteVPA writes the manifests as a multi-document YAML stream
func WriteVPA(w io.Writer, run *models.AnalysisRun) error {
	for _, vpa := range BuildVPAs(run) {
		data, err := yaml.Marshal(vpa)
		if err != nil {
			return fmt.Errorf("failed to marshal VPA %s/%s: %w", vpa.Namespace, vpa.Name, err)
		}
		if _, err := fmt.Fprintf(w, "---\n%s", data); err != nil {
			return err
		}
	}
	return nil
}
