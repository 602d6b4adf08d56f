package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// WriteCommands prints a kubectl set resources command per container.
// Nothing is applied; the commands are meant for review.
func WriteCommands(w io.Writer, run *models.AnalysisRun) error {
	for _, row := range run.Results {
		wl := row.Workload

		var requests, limits []string
		for _, d := range row.Results {
			if d.Recommendation == nil {
				continue
			}
			requests = append(requests, fmt.Sprintf("%s=%s", d.Dimension, formatQuantity(d.Dimension, d.Recommendation.RequestValue)))
			limits = append(limits, fmt.Sprintf("%s=%s", d.Dimension, formatQuantity(d.Dimension, d.Recommendation.LimitValue)))
		}

		if len(requests) == 0 {
			if _, err := fmt.Fprintf(w, "# %s: no recommendation\n", wl.Key()); err != nil {
				return err
			}
			continue
		}

		if wl.HPA != "" {
			if _, err := fmt.Fprintf(w, "# %s is scaled by HPA %s; review its targets before changing requests\n", wl.Key(), wl.HPA); err != nil {
				return err
			}
		}

		_, err := fmt.Fprintf(w, "kubectl set resources %s/%s -n %s -c %s --requests=%s --limits=%s\n",
			strings.ToLower(wl.Kind), wl.Name, wl.Namespace, wl.Container,
			strings.Join(requests, ","), strings.Join(limits, ","))
		if err != nil {
			return err
		}
	}
	return nil
}
