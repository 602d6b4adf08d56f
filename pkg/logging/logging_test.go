package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbosity(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{})

	log.V(1).Info("hidden")
	log.Info("shown", "namespace", "shop")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "shop")

	buf.Reset()
	New(&buf, Options{Verbose: true}).V(1).Info("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{JSON: true})

	log.Info("run finished", "failures", 2)
	require.NoError(t, Sync(log))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run finished", entry["msg"])
	assert.Equal(t, 2.0, entry["failures"])
}
