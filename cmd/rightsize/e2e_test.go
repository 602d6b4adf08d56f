//go:build e2e

package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/opscart/k8s-rightsizer/pkg/config"
	"github.com/opscart/k8s-rightsizer/pkg/logging"
	"github.com/opscart/k8s-rightsizer/pkg/reporter"
	"github.com/opscart/k8s-rightsizer/pkg/scanner"
)

// Runs against the cluster in the current kubeconfig context.
// E2E_NAMESPACE selects the namespace (default "default").

func e2eNamespace() string {
	if ns := os.Getenv("E2E_NAMESPACE"); ns != "" {
		return ns
	}
	return "default"
}

func TestRealClusterConnection(t *testing.T) {
	kube, _, err := scanner.NewClients(kubeconfig)
	require.NoError(t, err)

	nodes, err := kube.CoreV1().Nodes().List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, nodes.Items, "no nodes found in cluster")

	t.Logf("Connected to cluster with %d node(s)", len(nodes.Items))
}

func TestRealNamespaceScan(t *testing.T) {
	kube, _, err := scanner.NewClients(kubeconfig)
	require.NoError(t, err)

	workloads, err := scanner.New(kube, "e2e").Scan(context.Background(), e2eNamespace(), false)
	require.NoError(t, err)
	require.NotEmpty(t, workloads, "no workloads in namespace %s", e2eNamespace())

	for _, w := range workloads {
		t.Logf("  - %s (env: %s)", w.Key(), w.Environment)
	}
}

func TestAnalyzeRealCluster(t *testing.T) {
	cfg = config.NewConfig()
	ctx := logr.NewContext(context.Background(), logging.New(os.Stderr, logging.Options{Verbose: true}))

	sizing, err := loadSettings()
	require.NoError(t, err)

	p, err := buildPipeline(ctx, sizing, pipelineOptions{Namespace: e2eNamespace()})
	require.NoError(t, err)

	run, err := p.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, run.Results)

	var buf bytes.Buffer
	require.NoError(t, reporter.Write(&buf, run, reporter.FormatTable))
	assert.Contains(t, buf.String(), e2eNamespace())
	t.Logf("Output:\n%s", buf.String())
}
