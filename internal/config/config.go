// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the declarative document that
// configures every Nexus component. The document format itself (YAML)
// and environment-variable overlay are the only parts of this package
// an operator ever touches directly; everything downstream consumes the
// validated Config struct tree.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DiscoveryConfig struct {
	Enabled           bool     `yaml:"enabled"`
	GracePeriodSecond int      `yaml:"grace_period_seconds"`
	ServiceTypes      []string `yaml:"service_types"`
}

type HealthCheckConfig struct {
	Enabled           bool `yaml:"enabled"`
	IntervalSeconds   int  `yaml:"interval_seconds"`
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
	FailureThreshold  int  `yaml:"failure_threshold"`
	RecoveryThreshold int  `yaml:"recovery_threshold"`
}

type Weights struct {
	Priority int `yaml:"priority"`
	Load     int `yaml:"load"`
	Latency  int `yaml:"latency"`
}

type Policy struct {
	ModelPattern     string  `yaml:"model_pattern"`
	Privacy          string  `yaml:"privacy"` // "unrestricted" | "restricted"
	MaxCostPerReq    *float64 `yaml:"max_cost_per_request"`
	MinTier          *int    `yaml:"min_tier"`
	FallbackAllowed  bool    `yaml:"fallback_allowed"`
}

type RoutingConfig struct {
	Strategy    string              `yaml:"strategy"` // smart|round_robin|priority_only|random
	MaxRetries  int                 `yaml:"max_retries"`
	Weights     Weights             `yaml:"weights"`
	Aliases     map[string]string   `yaml:"aliases"`
	Fallbacks   map[string][]string `yaml:"fallbacks"`
	Policies    []Policy            `yaml:"policies"`
}

type BudgetConfig struct {
	Enabled               bool    `yaml:"enabled"`
	MonthlyLimit          float64 `yaml:"monthly_limit"`
	SoftLimitPercent      float64 `yaml:"soft_limit_percent"`
	HardLimitAction       string  `yaml:"hard_limit_action"` // local-only|queue|reject
	BillingCycleStartDay  int     `yaml:"billing_cycle_start_day"`
}

type QualityConfig struct {
	ErrorRateThreshold    float64 `yaml:"error_rate_threshold"`
	TTFTPenaltyThresholdMS int    `yaml:"ttft_penalty_threshold_ms"`
	MetricsIntervalSeconds int    `yaml:"metrics_interval_seconds"`
}

type QueueConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxSize        int  `yaml:"max_size"`
	MaxWaitSeconds int  `yaml:"max_wait_seconds"`
}

type LifecycleConfig struct {
	TimeoutMS            int     `yaml:"timeout_ms"`
	VRAMHeadroomPercent  float64 `yaml:"vram_headroom_percent"`
	VRAMBufferPercent    float64 `yaml:"vram_buffer_percent"`
	VRAMHeuristicMaxGB   float64 `yaml:"vram_heuristic_max_gb"`
}

type FleetConfig struct {
	Enabled               bool `yaml:"enabled"`
	MinSampleDays         int  `yaml:"min_sample_days"`
	MinRequestCount       int  `yaml:"min_request_count"`
	AnalysisIntervalSecs  int  `yaml:"analysis_interval_seconds"`
	MaxRecommendations    int  `yaml:"max_recommendations"`
}

type BackendConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Type      string `yaml:"type"`
	Priority  int    `yaml:"priority"`
	APIKeyEnv string `yaml:"api_key_env"`
	Zone      string `yaml:"zone"` // open|restricted
	Tier      int    `yaml:"tier"`
}

type LoggingConfig struct {
	Level                string            `yaml:"level"`
	Format               string            `yaml:"format"` // pretty|json
	ComponentLevels      map[string]string `yaml:"component_levels"`
	EnableContentLogging bool              `yaml:"enable_content_logging"`
}

// Config is the full validated configuration document.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	Routing     RoutingConfig     `yaml:"routing"`
	Budget      BudgetConfig      `yaml:"budget"`
	Quality     QualityConfig     `yaml:"quality"`
	Queue       QueueConfig       `yaml:"queue"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Fleet       FleetConfig       `yaml:"fleet"`
	Backends    []BackendConfig   `yaml:"backends"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Defaults returns a Config populated with every documented default, ready
// to be overlaid by a parsed document.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Discovery: DiscoveryConfig{
			Enabled:           false,
			GracePeriodSecond: 5,
			ServiceTypes:      []string{"_ollama._tcp"},
		},
		HealthCheck: HealthCheckConfig{
			Enabled:           true,
			IntervalSeconds:   30,
			TimeoutSeconds:    5,
			FailureThreshold:  3,
			RecoveryThreshold: 2,
		},
		Routing: RoutingConfig{
			Strategy:   "smart",
			MaxRetries: 2,
			Weights:    Weights{Priority: 50, Load: 30, Latency: 20},
			Aliases:    map[string]string{},
			Fallbacks:  map[string][]string{},
		},
		Budget: BudgetConfig{
			Enabled:              false,
			SoftLimitPercent:     75,
			HardLimitAction:      "local-only",
			BillingCycleStartDay: 1,
		},
		Quality: QualityConfig{
			ErrorRateThreshold:     0.5,
			TTFTPenaltyThresholdMS: 3000,
			MetricsIntervalSeconds: 30,
		},
		Queue: QueueConfig{Enabled: true, MaxSize: 100, MaxWaitSeconds: 30},
		Lifecycle: LifecycleConfig{
			TimeoutMS:           60000,
			VRAMHeadroomPercent: 10,
			VRAMBufferPercent:   5,
			VRAMHeuristicMaxGB:  22,
		},
		Fleet: FleetConfig{
			Enabled:              false,
			MinSampleDays:        3,
			MinRequestCount:      50,
			AnalysisIntervalSecs: 3600,
			MaxRecommendations:   5,
		},
		Logging: LoggingConfig{Level: "INFO", Format: "json", ComponentLevels: map[string]string{}},
	}
}

// Load reads and parses a YAML document at path over top of Defaults(),
// applies the NEXUS_* environment overlay, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverlay(cfg)
	for i := range cfg.Backends {
		if cfg.Backends[i].Tier == 0 {
			cfg.Backends[i].Tier = 1
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverlay applies the small set of documented NEXUS_* environment
// overrides on top of whatever the document specified.
func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("NEXUS_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NEXUS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("NEXUS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEXUS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NEXUS_DISCOVERY"); v != "" {
		cfg.Discovery.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NEXUS_HEALTH_CHECK"); v != "" {
		cfg.HealthCheck.Enabled = v == "true" || v == "1"
	}
}

// BackendAPIKey resolves a backend's API key from its configured env var.
func BackendAPIKey(b BackendConfig) string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}
