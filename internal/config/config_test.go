package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
addr: ":9090"
pool_size: 8
endpoint:
  endpoint_id: ep-from-file
  token: tok-from-file
workflow:
  template_path: /etc/comfyrelay/workflow.json
  positive_node: "10"
polling:
  async_budget_sec: 300
store:
  retention_min: 30
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" || cfg.PoolSize != 8 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Endpoint.EndpointID != "ep-from-file" {
		t.Fatalf("endpoint not read: %+v", cfg.Endpoint)
	}
	if cfg.Workflow.PositiveNode != "10" {
		t.Fatalf("node binding not read: %+v", cfg.Workflow)
	}
	if cfg.AsyncBudget() != 5*time.Minute {
		t.Fatalf("duration translation wrong: %s", cfg.AsyncBudget())
	}
	if cfg.Retention() != 30*time.Minute {
		t.Fatalf("retention wrong: %s", cfg.Retention())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("RUNPOD_ENDPOINT_ID", "ep-from-env")
	t.Setenv("POOL_SIZE", "2")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint.EndpointID != "ep-from-env" {
		t.Fatalf("env should win over file: %q", cfg.Endpoint.EndpointID)
	}
	if cfg.PoolSize != 2 {
		t.Fatalf("env int override lost: %d", cfg.PoolSize)
	}
	// Untouched file values survive
	if cfg.Endpoint.Token != "tok-from-file" {
		t.Fatalf("file value clobbered: %q", cfg.Endpoint.Token)
	}
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("RUNPOD_ENDPOINT_ID", "ep1")
	t.Setenv("RUNPOD_API_TOKEN", "tok")
	t.Setenv("WORKFLOW_TEMPLATE", "/tmp/workflow.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("default addr missing: %q", cfg.Addr)
	}
	if cfg.Endpoint.APIBase != "https://api.runpod.ai/v2" {
		t.Fatalf("default api base missing: %q", cfg.Endpoint.APIBase)
	}
	if cfg.Workflow.PositiveNode == "" || cfg.Workflow.SamplerNode == "" {
		t.Fatalf("default node bindings missing: %+v", cfg.Workflow)
	}
	if cfg.Retention() != time.Hour || cfg.SweepInterval() != 10*time.Minute {
		t.Fatalf("default store windows wrong: %s / %s", cfg.Retention(), cfg.SweepInterval())
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected required-field error, got %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "endpoint: [not: a map"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
