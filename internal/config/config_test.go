package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
classifier:
  confidencethreshold: 0.7
store:
  similaritythreshold: 0.85
global:
  loglevel: debug
  metricsbackend: prometheus
  tracingenabled: true
  servicename: leadpipe-test
`

func writeTemp(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "leadpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "prometheus", cfg.Global.MetricsBackend)
	assert.True(t, cfg.Global.TracingEnabled)
	assert.Equal(t, 0.7, cfg.Classifier.ConfidenceThreshold)
}

func TestLoadDefaultsGlobalWhenOmitted(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "classifier:\n  confidencethreshold: 0.5\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, "noop", cfg.Global.MetricsBackend)
	assert.Equal(t, "leadpipe", cfg.Global.ServiceName)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "global:\n  loglevel: verbose\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeThreshold(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "classifier:\n  confidencethreshold: 1.5\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatcherInvokesOnChangeOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "classifier:\n  confidencethreshold: 0.5\n")

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(c Config) { changes <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	// Let the watch loop register before mutating the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("classifier:\n  confidencethreshold: 0.9\n"), 0o644))

	select {
	case c := <-changes:
		assert.Equal(t, 0.9, c.Classifier.ConfidenceThreshold)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	require.NoError(t, w.Stop())
}

func TestWatcherIgnoresUnchangedRewrite(t *testing.T) {
	dir := t.TempDir()
	body := "classifier:\n  confidencethreshold: 0.5\n"
	path := writeTemp(t, dir, body)

	changes := make(chan Config, 4)
	w, err := NewWatcher(path, func(c Config) { changes <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	select {
	case <-changes:
		t.Fatal("unexpected reload for byte-identical rewrite")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, w.Stop())
}
