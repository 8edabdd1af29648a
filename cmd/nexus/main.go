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

// Command nexus is the entry point for the Nexus gateway: an
// OpenAI-compatible router that fronts a fleet of heterogeneous LLM
// inference backends behind a single /v1/* surface.
//
// Usage:
//
//	./nexus -config nexus.yaml
//
// Environment Variables:
//
//	NEXUS_HOST         - HTTP bind host override
//	NEXUS_PORT         - HTTP bind port override
//	NEXUS_LOG_LEVEL    - log level override
//	NEXUS_LOG_FORMAT   - log format override (json|pretty)
//	NEXUS_DISCOVERY    - enable/disable mDNS discovery
//	NEXUS_HEALTH_CHECK - enable/disable the background health checker
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"nexus/internal/agent"
	"nexus/internal/apierror"
	"nexus/internal/budget"
	"nexus/internal/config"
	"nexus/internal/fleet"
	"nexus/internal/health"
	"nexus/internal/httpapi"
	"nexus/internal/lifecycle"
	"nexus/internal/logging"
	"nexus/internal/orchestrator"
	"nexus/internal/pricing"
	"nexus/internal/queue"
	"nexus/internal/quality"
	"nexus/internal/registry"
	"nexus/internal/routing"
)

func main() {
	configPath := flag.String("config", "nexus.yaml", "path to the Nexus configuration document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nexus: %v\n", err)
		os.Exit(1)
	}

	componentLevels := make(map[string]logging.Level, len(cfg.Logging.ComponentLevels))
	for k, v := range cfg.Logging.ComponentLevels {
		componentLevels[k] = logging.Level(v)
	}
	logging.Configure(logging.Format(cfg.Logging.Format), logging.Level(cfg.Logging.Level), componentLevels)
	log := logging.New("main")

	reg := registry.New()
	if err := registerBackends(reg, cfg); err != nil {
		log.Error("", "failed to register configured backends", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	qualityStore := quality.New()
	pricingTable := pricing.NewTable()
	budgetState := budget.New(budget.Config{
		Enabled:              cfg.Budget.Enabled,
		MonthlyLimitUSD:      cfg.Budget.MonthlyLimit,
		SoftLimitPercent:     cfg.Budget.SoftLimitPercent,
		HardLimitAction:      budget.HardLimitAction(cfg.Budget.HardLimitAction),
		BillingCycleStartDay: cfg.Budget.BillingCycleStartDay,
	})
	fleetAnalyzer := fleet.New(fleet.Config{
		Enabled:              cfg.Fleet.Enabled,
		MinSampleDays:        cfg.Fleet.MinSampleDays,
		MinRequestCount:      cfg.Fleet.MinRequestCount,
		AnalysisIntervalSecs: cfg.Fleet.AnalysisIntervalSecs,
		MaxRecommendations:   cfg.Fleet.MaxRecommendations,
	})
	lifecycleMgr := lifecycle.New(lifecycle.Config{
		TimeoutMS:           cfg.Lifecycle.TimeoutMS,
		VRAMHeadroomPercent: cfg.Lifecycle.VRAMHeadroomPercent,
		VRAMBufferPercent:   cfg.Lifecycle.VRAMBufferPercent,
		VRAMHeuristicMaxGB:  cfg.Lifecycle.VRAMHeuristicMaxGB,
	}, reg)

	pipeline := buildPipeline(cfg, budgetState, pricingTable)
	router := routing.NewRouter(reg, qualityStore, pipeline, cfg.Routing.Fallbacks)

	var requestQueue *queue.Queue
	if cfg.Queue.Enabled {
		requestQueue = queue.New(cfg.Queue.MaxSize, cfg.Queue.MaxWaitSeconds)
	}
	orch := orchestrator.New(reg, router, qualityStore, requestQueue, fleetAnalyzer)

	server := httpapi.NewServer(reg, orch, lifecycleMgr, fleetAnalyzer, qualityStore, budgetState)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startBackgroundLoops(ctx, cfg, reg, qualityStore, budgetState, fleetAnalyzer, requestQueue, router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	go func() {
		log.Info("", "nexus listening", map[string]interface{}{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("", "http server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
		}
	}()

	waitForShutdown(log)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	log.Info("", "nexus shut down", nil)
}

func waitForShutdown(log *logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("", "shutdown signal received", map[string]interface{}{"signal": sig.String()})
}

// registerBackends constructs one Agent per configured backend according
// to its declared type and registers it alongside its Backend record.
func registerBackends(reg *registry.Registry, cfg *config.Config) error {
	for _, bc := range cfg.Backends {
		kind := agent.Kind(bc.Type)
		zone := agent.ZoneOpen
		if bc.Zone == "restricted" {
			zone = agent.ZoneRestricted
		}
		tier := bc.Tier
		if tier == 0 {
			tier = 1
		}

		var a agent.Agent
		apiKey := config.BackendAPIKey(bc)

		switch kind {
		case agent.KindOllama:
			a = agent.NewOllama(agent.OllamaConfig{BackendID: bc.Name, BaseURL: bc.URL, Zone: zone, Tier: tier})
		case agent.KindAnthropic:
			a = agent.NewAnthropic(agent.AnthropicConfig{BackendID: bc.Name, BaseURL: bc.URL, APIKey: apiKey, Tier: tier})
		case agent.KindOpenAI, agent.KindVLLM, agent.KindLMStudio, agent.KindGeneric:
			a = agent.NewOpenAICompatible(agent.OpenAICompatibleConfig{
				BackendID: bc.Name, Kind: kind, BaseURL: bc.URL, APIKey: apiKey, Zone: zone, Tier: tier,
			})
		default:
			return fmt.Errorf("unrecognized backend type %q for backend %q", bc.Type, bc.Name)
		}

		b := &registry.Backend{
			ID: bc.Name, DisplayName: bc.Name, URL: bc.URL, Kind: kind,
			Priority: bc.Priority, DiscoverySource: registry.SourceStatic, Zone: zone, Tier: tier,
		}
		if err := reg.AddBackendWithAgent(b, a); err != nil {
			return err
		}
	}
	return nil
}

// buildPipeline assembles the reconciler chain in its fixed order:
// RequestAnalyzer, Privacy, Budget, TierCapability, Quality, Scheduler.
func buildPipeline(cfg *config.Config, budgetState *budget.State, pricingTable *pricing.Table) *routing.Pipeline {
	policies := make([]routing.TrafficPolicy, 0, len(cfg.Routing.Policies))
	for _, p := range cfg.Routing.Policies {
		privacy := routing.PrivacyUnrestricted
		if p.Privacy == "restricted" {
			privacy = routing.PrivacyRestricted
		}
		policies = append(policies, routing.TrafficPolicy{
			ModelPattern: p.ModelPattern, Privacy: privacy,
			MaxCostPerReq: p.MaxCostPerReq, MinTier: p.MinTier, FallbackAllowed: p.FallbackAllowed,
		})
	}
	matcher := routing.NewPolicyMatcher(policies)
	aliasResolver := routing.NewAliasResolver(cfg.Routing.Aliases)

	weights := routing.ScoreWeights{
		Priority: cfg.Routing.Weights.Priority,
		Load:     cfg.Routing.Weights.Load,
		Latency:  cfg.Routing.Weights.Latency,
	}

	return routing.NewPipeline(
		routing.NewRequestAnalyzer(aliasResolver),
		routing.NewPrivacy(matcher),
		routing.NewBudget(budgetState, pricingTable),
		routing.NewTierCapability(matcher),
		routing.NewQuality(cfg.Quality.ErrorRateThreshold),
		routing.NewScheduler(routing.Strategy(cfg.Routing.Strategy), weights),
	)
}

// startBackgroundLoops launches every long-running task that lives for the
// process lifetime: health checker, quality recompute, budget cycle reset,
// fleet analysis, and (if enabled) the queue drain loop.
func startBackgroundLoops(ctx context.Context, cfg *config.Config, reg *registry.Registry, qs *quality.Store, bs *budget.State, fa *fleet.Analyzer, q *queue.Queue, router *routing.Router) {
	if cfg.HealthCheck.Enabled {
		checker := health.New(health.Config{
			IntervalSeconds:   cfg.HealthCheck.IntervalSeconds,
			TimeoutSeconds:    cfg.HealthCheck.TimeoutSeconds,
			FailureThreshold:  cfg.HealthCheck.FailureThreshold,
			RecoveryThreshold: cfg.HealthCheck.RecoveryThreshold,
		}, reg)
		go checker.Run(ctx)
	}

	go qs.Run(ctx, cfg.Quality.MetricsIntervalSeconds)
	go bs.Run(ctx)

	if cfg.Fleet.Enabled {
		go fa.Run(ctx)
	}

	if q != nil {
		go q.Run(ctx, func(req *queue.Request) (bool, *apierror.Error) {
			requirements, ok := req.Requirements.(routing.RequestRequirements)
			if !ok {
				return false, apierror.New(500, apierror.CodeInternal, "queued request carries invalid requirements")
			}
			tierMode, _ := req.TierMode.(routing.TierMode)
			result := router.Route(uuid.NewString(), requirements, tierMode)
			return result.Decision.Routed, nil
		})
	}
}
