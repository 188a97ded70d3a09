package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vk/lmrun/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TestCorpus is a small corpus long enough for block sizes up to 8.
var TestCorpus = strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)

// TestRunConfig is a run config that trains a tiny char_mlp in a few steps.
const TestRunConfig = `
model         = "char_mlp"
learning_rate = 0.01
n_hidden      = 8
context_size  = 2
batch_size    = 4
max_steps     = 6
eval_interval = 3
eval_iters    = 2
`

// TestSetupConfig holds the fixed settings matching TestRunConfig.
const TestSetupConfig = `
seed       = 42
device     = "cpu"
block_size = 4
`

// WriteTestFiles writes a config dir holding name.hcl and setup_name.hcl
// plus a corpus file, and returns the config dir and the corpus path.
func WriteTestFiles(t *testing.T, name, runCfg, setupCfg, corpus string) (configDir, dataPath string) {
	t.Helper()
	dir := t.TempDir()
	configDir = filepath.Join(dir, "configs")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	files := map[string]string{
		filepath.Join(configDir, name+".hcl"): runCfg,
		filepath.Join(dir, "corpus.txt"):      corpus,
	}
	if setupCfg != "" {
		files[filepath.Join(configDir, "setup_"+name+".hcl")] = setupCfg
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return configDir, filepath.Join(dir, "corpus.txt")
}

// SetupAppTest creates a new app instance for system testing.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(logBuffer, cfg, modules...)

	t.Cleanup(func() {
		if os.Getenv("LMRUN_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
