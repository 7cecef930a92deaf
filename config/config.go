package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Azure     AzureConfig     `mapstructure:"azure"`
	Research  ResearchConfig  `mapstructure:"research"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug  bool   `mapstructure:"debug"`
	LogDir string `mapstructure:"log_dir"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// Address renders the host/port pair as a listen address.
func (s ServerConfig) Address() string {
	host := strings.TrimSpace(s.Host)
	port := strings.TrimSpace(s.Port)
	if port == "" {
		port = "5000"
	}
	return host + ":" + port
}

// AzureConfig contains the AI project endpoint, model selection and auth
// material for the remote agents service.
type AzureConfig struct {
	Endpoint           string        `mapstructure:"endpoint"`
	APIVersion         string        `mapstructure:"api_version"`
	BingConnectionName string        `mapstructure:"bing_connection_name"`
	DeepResearchModel  string        `mapstructure:"deep_research_model"`
	AgentModel         string        `mapstructure:"agent_model"`
	AgentName          string        `mapstructure:"agent_name"`
	TenantID           string        `mapstructure:"tenant_id"`
	ClientID           string        `mapstructure:"client_id"`
	ClientSecret       string        `mapstructure:"client_secret"`
	AccessToken        string        `mapstructure:"access_token"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

func (a AzureConfig) Validate() error {
	if strings.TrimSpace(a.Endpoint) == "" {
		return fmt.Errorf("azure.endpoint is required (AZURE_AI_PROJECT_ENDPOINT)")
	}
	if strings.TrimSpace(a.BingConnectionName) == "" {
		return fmt.Errorf("azure.bing_connection_name is required (BING_CONNECTION_NAME)")
	}
	if strings.TrimSpace(a.AccessToken) == "" && strings.TrimSpace(a.ClientSecret) == "" {
		return fmt.Errorf("azure auth not configured: set azure.access_token or azure.tenant_id/client_id/client_secret")
	}
	if strings.TrimSpace(a.ClientSecret) != "" {
		if strings.TrimSpace(a.TenantID) == "" || strings.TrimSpace(a.ClientID) == "" {
			return fmt.Errorf("azure.tenant_id and azure.client_id are required with azure.client_secret")
		}
	}
	return nil
}

// ResearchConfig tunes the session orchestrator.
type ResearchConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxRunWait      time.Duration `mapstructure:"max_run_wait"`
	InputTimeout    time.Duration `mapstructure:"input_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ReportDir       string        `mapstructure:"report_dir"`
	HandoffCapacity int           `mapstructure:"handoff_capacity"`
}

// Normalize applies defaults for unset research values.
func (r ResearchConfig) Normalize() ResearchConfig {
	if r.PollInterval <= 0 {
		r.PollInterval = 5 * time.Second
	}
	if r.InputTimeout <= 0 {
		r.InputTimeout = 5 * time.Minute
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if strings.TrimSpace(r.ReportDir) == "" {
		r.ReportDir = "."
	}
	if r.HandoffCapacity <= 0 {
		r.HandoffCapacity = 16
	}
	return r
}

func (r ResearchConfig) Validate() error {
	if r.MaxRunWait < 0 {
		return fmt.Errorf("research.max_run_wait cannot be negative")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Validate checks the full configuration before a session can be served.
func (c *Config) Validate() error {
	if err := c.Azure.Validate(); err != nil {
		return err
	}
	return c.Research.Validate()
}

// LoadConfig loads config from file (optional) and environment.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name

	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_dir", "logs")
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("azure.api_version", "2025-05-01")
	viper.SetDefault("azure.deep_research_model", "o3-deep-research")
	viper.SetDefault("azure.agent_model", "gpt-4o")
	viper.SetDefault("azure.agent_name", "my-research-agent")
	viper.SetDefault("azure.timeout", 30*time.Second)
	viper.SetDefault("research.poll_interval", 5*time.Second)
	viper.SetDefault("research.max_run_wait", 0)
	viper.SetDefault("research.input_timeout", 5*time.Minute)
	viper.SetDefault("research.max_retries", 3)
	viper.SetDefault("research.report_dir", ".")
	viper.SetDefault("research.handoff_capacity", 16)
	viper.SetDefault("telemetry.enabled", false)

	if path == "" {
		viper.AddConfigPath("./config") // path to look for the config file in
		viper.AddConfigPath(".")        // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("RESEARCHD")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (RESEARCHD_*)

	// Legacy variable names from the original deployment keep working.
	_ = viper.BindEnv("azure.endpoint", "RESEARCHD_AZURE_ENDPOINT", "AZURE_AI_PROJECT_ENDPOINT")
	_ = viper.BindEnv("azure.bing_connection_name", "RESEARCHD_AZURE_BING_CONNECTION_NAME", "BING_CONNECTION_NAME")
	_ = viper.BindEnv("azure.deep_research_model", "RESEARCHD_AZURE_DEEP_RESEARCH_MODEL", "DEEP_RESEARCH_MODEL")
	_ = viper.BindEnv("azure.agent_model", "RESEARCHD_AZURE_AGENT_MODEL", "AGENT_MODEL")
	_ = viper.BindEnv("azure.agent_name", "RESEARCHD_AZURE_AGENT_NAME", "AGENT_NAME")
	_ = viper.BindEnv("azure.tenant_id", "RESEARCHD_AZURE_TENANT_ID", "AZURE_TENANT_ID")
	_ = viper.BindEnv("azure.client_id", "RESEARCHD_AZURE_CLIENT_ID", "AZURE_CLIENT_ID")
	_ = viper.BindEnv("azure.client_secret", "RESEARCHD_AZURE_CLIENT_SECRET", "AZURE_CLIENT_SECRET")
	_ = viper.BindEnv("azure.access_token", "RESEARCHD_AZURE_ACCESS_TOKEN", "AZURE_AI_ACCESS_TOKEN")
	_ = viper.BindEnv("server.port", "RESEARCHD_SERVER_PORT", "PORT")

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {
		// Env-only deployments run without a config file.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Research = config.Research.Normalize()

	return &config
}
