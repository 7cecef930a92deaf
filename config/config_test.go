package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestServerAddress(t *testing.T) {
	cases := []struct {
		host, port, want string
	}{
		{"", "", ":5000"},
		{"127.0.0.1", "", "127.0.0.1:5000"},
		{"0.0.0.0", "8080", "0.0.0.0:8080"},
	}
	for _, tc := range cases {
		got := ServerConfig{Host: tc.host, Port: tc.port}.Address()
		if got != tc.want {
			t.Errorf("Address(%q, %q) = %q, want %q", tc.host, tc.port, got, tc.want)
		}
	}
}

func TestResearchNormalizeDefaults(t *testing.T) {
	r := ResearchConfig{}.Normalize()
	if r.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %s", r.PollInterval)
	}
	if r.InputTimeout != 5*time.Minute {
		t.Errorf("input timeout = %s", r.InputTimeout)
	}
	if r.MaxRetries != 3 {
		t.Errorf("max retries = %d", r.MaxRetries)
	}
	if r.ReportDir != "." {
		t.Errorf("report dir = %q", r.ReportDir)
	}
	if r.HandoffCapacity != 16 {
		t.Errorf("handoff capacity = %d", r.HandoffCapacity)
	}
	if r.MaxRunWait != 0 {
		t.Errorf("max run wait = %s", r.MaxRunWait)
	}
}

func TestResearchNormalizeKeepsExplicitValues(t *testing.T) {
	r := ResearchConfig{
		PollInterval: time.Second,
		InputTimeout: time.Minute,
		MaxRetries:   5,
		ReportDir:    "/tmp/reports",
		MaxRunWait:   time.Hour,
	}.Normalize()
	if r.PollInterval != time.Second || r.InputTimeout != time.Minute || r.MaxRetries != 5 {
		t.Errorf("explicit values overridden: %+v", r)
	}
	if r.ReportDir != "/tmp/reports" || r.MaxRunWait != time.Hour {
		t.Errorf("explicit values overridden: %+v", r)
	}
}

func TestAzureValidate(t *testing.T) {
	valid := AzureConfig{
		Endpoint:           "https://project.example",
		BingConnectionName: "bing",
		TenantID:           "tenant",
		ClientID:           "client",
		ClientSecret:       "secret",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tokenOnly := AzureConfig{
		Endpoint:           "https://project.example",
		BingConnectionName: "bing",
		AccessToken:        "token",
	}
	if err := tokenOnly.Validate(); err != nil {
		t.Fatalf("token-only config rejected: %v", err)
	}

	cases := []struct {
		name string
		cfg  AzureConfig
		want string
	}{
		{
			name: "missing endpoint",
			cfg:  AzureConfig{BingConnectionName: "bing", AccessToken: "token"},
			want: "azure.endpoint",
		},
		{
			name: "missing connection",
			cfg:  AzureConfig{Endpoint: "https://project.example", AccessToken: "token"},
			want: "bing_connection_name",
		},
		{
			name: "no auth material",
			cfg:  AzureConfig{Endpoint: "https://project.example", BingConnectionName: "bing"},
			want: "auth not configured",
		},
		{
			name: "secret without tenant",
			cfg: AzureConfig{
				Endpoint:           "https://project.example",
				BingConnectionName: "bing",
				ClientSecret:       "secret",
			},
			want: "tenant_id",
		},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestResearchValidate(t *testing.T) {
	if err := (ResearchConfig{MaxRunWait: -time.Second}).Validate(); err == nil {
		t.Fatalf("negative max_run_wait accepted")
	}
	if err := (ResearchConfig{}).Validate(); err != nil {
		t.Fatalf("zero config rejected: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
  "server": {"host": "0.0.0.0", "port": "8080"},
  "azure": {
    "endpoint": "https://project.example",
    "bing_connection_name": "bing-grounding",
    "access_token": "token"
  },
  "research": {"poll_interval": "2s"}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := LoadConfig(path)
	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Errorf("address = %q", cfg.Server.Address())
	}
	if cfg.Azure.Endpoint != "https://project.example" {
		t.Errorf("endpoint = %q", cfg.Azure.Endpoint)
	}
	if cfg.Azure.APIVersion != "2025-05-01" {
		t.Errorf("api version default missing: %q", cfg.Azure.APIVersion)
	}
	if cfg.Azure.DeepResearchModel != "o3-deep-research" || cfg.Azure.AgentModel != "gpt-4o" {
		t.Errorf("model defaults missing: %+v", cfg.Azure)
	}
	if cfg.Research.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %s", cfg.Research.PollInterval)
	}
	// unset values still normalized
	if cfg.Research.MaxRetries != 3 || cfg.Research.HandoffCapacity != 16 {
		t.Errorf("normalize not applied: %+v", cfg.Research)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("AZURE_AI_PROJECT_ENDPOINT", "https://env.example")
	t.Setenv("BING_CONNECTION_NAME", "env-bing")
	t.Setenv("AZURE_AI_ACCESS_TOKEN", "env-token")
	t.Setenv("PORT", "9999")
	t.Setenv("RESEARCHD_GENERAL_DEBUG", "true")

	cfg := LoadConfig("")
	if cfg.Azure.Endpoint != "https://env.example" {
		t.Errorf("endpoint = %q", cfg.Azure.Endpoint)
	}
	if cfg.Azure.BingConnectionName != "env-bing" {
		t.Errorf("bing connection = %q", cfg.Azure.BingConnectionName)
	}
	if cfg.Azure.AccessToken != "env-token" {
		t.Errorf("access token = %q", cfg.Azure.AccessToken)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if !cfg.General.Debug {
		t.Errorf("debug not picked up from env")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
