package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the gateway needs at startup. Values come from
// an optional YAML file, then environment variables on top; env always
// wins so deployments can override a checked-in file.
type Config struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
	LogLevel string `yaml:"log_level"`

	Endpoint struct {
		APIBase    string `yaml:"api_base"`
		EndpointID string `yaml:"endpoint_id"`
		Token      string `yaml:"token"`
	} `yaml:"endpoint"`

	Workflow struct {
		TemplatePath  string `yaml:"template_path"`
		PositiveNode  string `yaml:"positive_node"`
		SecondaryNode string `yaml:"secondary_node"`
		NegativeNode  string `yaml:"negative_node"`
		SamplerNode   string `yaml:"sampler_node"`
	} `yaml:"workflow"`

	Polling struct {
		SyncIntervalSec  int `yaml:"sync_interval_sec"`
		SyncBudgetSec    int `yaml:"sync_budget_sec"`
		AsyncIntervalSec int `yaml:"async_interval_sec"`
		AsyncBudgetSec   int `yaml:"async_budget_sec"`
	} `yaml:"polling"`

	Store struct {
		RetentionMin int `yaml:"retention_min"`
		SweepMin     int `yaml:"sweep_min"`
	} `yaml:"store"`

	Webhook struct {
		URL        string `yaml:"url"`
		TimeoutSec int    `yaml:"timeout_sec"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"webhook"`
}

// Load reads the YAML file at path when it exists, then applies env
// overrides and defaults. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if cfg.Endpoint.EndpointID == "" || cfg.Endpoint.Token == "" {
		return nil, fmt.Errorf("endpoint_id and token are required")
	}
	if cfg.Workflow.TemplatePath == "" {
		return nil, fmt.Errorf("workflow template_path is required")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Addr, "API_ADDR")
	envInt(&c.PoolSize, "POOL_SIZE")
	envString(&c.LogLevel, "LOG_LEVEL")
	envString(&c.Endpoint.APIBase, "RUNPOD_API_BASE")
	envString(&c.Endpoint.EndpointID, "RUNPOD_ENDPOINT_ID")
	envString(&c.Endpoint.Token, "RUNPOD_API_TOKEN")
	envString(&c.Workflow.TemplatePath, "WORKFLOW_TEMPLATE")
	envString(&c.Workflow.PositiveNode, "WORKFLOW_POSITIVE_NODE")
	envString(&c.Workflow.SecondaryNode, "WORKFLOW_SECONDARY_NODE")
	envString(&c.Workflow.NegativeNode, "WORKFLOW_NEGATIVE_NODE")
	envString(&c.Workflow.SamplerNode, "WORKFLOW_SAMPLER_NODE")
	envInt(&c.Polling.SyncIntervalSec, "SYNC_POLL_INTERVAL_SEC")
	envInt(&c.Polling.SyncBudgetSec, "SYNC_POLL_BUDGET_SEC")
	envInt(&c.Polling.AsyncIntervalSec, "ASYNC_POLL_INTERVAL_SEC")
	envInt(&c.Polling.AsyncBudgetSec, "ASYNC_POLL_BUDGET_SEC")
	envInt(&c.Store.RetentionMin, "JOB_RETENTION_MIN")
	envInt(&c.Store.SweepMin, "JOB_SWEEP_MIN")
	envString(&c.Webhook.URL, "WEBHOOK_URL")
	envInt(&c.Webhook.TimeoutSec, "WEBHOOK_TIMEOUT_SEC")
	envInt(&c.Webhook.MaxRetries, "WEBHOOK_MAX_RETRIES")
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Endpoint.APIBase == "" {
		c.Endpoint.APIBase = "https://api.runpod.ai/v2"
	}
	if c.Workflow.PositiveNode == "" {
		c.Workflow.PositiveNode = "6"
	}
	if c.Workflow.NegativeNode == "" {
		c.Workflow.NegativeNode = "7"
	}
	if c.Workflow.SamplerNode == "" {
		c.Workflow.SamplerNode = "3"
	}
	if c.Webhook.TimeoutSec <= 0 {
		c.Webhook.TimeoutSec = 10
	}
	if c.Webhook.MaxRetries < 0 {
		c.Webhook.MaxRetries = 5
	}
	if c.Store.RetentionMin <= 0 {
		c.Store.RetentionMin = 60
	}
	if c.Store.SweepMin <= 0 {
		c.Store.SweepMin = 10
	}
}

// SyncInterval and friends translate the plain-int YAML/env fields into
// durations.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Polling.SyncIntervalSec) * time.Second
}

func (c *Config) SyncBudget() time.Duration {
	return time.Duration(c.Polling.SyncBudgetSec) * time.Second
}

func (c *Config) AsyncInterval() time.Duration {
	return time.Duration(c.Polling.AsyncIntervalSec) * time.Second
}

func (c *Config) AsyncBudget() time.Duration {
	return time.Duration(c.Polling.AsyncBudgetSec) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Store.RetentionMin) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Store.SweepMin) * time.Minute
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
