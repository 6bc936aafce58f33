package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	builderconfig "github.com/moduleforge/builder/internal/config"
	"github.com/moduleforge/builder/internal/events"
	"github.com/moduleforge/builder/internal/gateway"
	"github.com/moduleforge/builder/internal/gateway/providers"
	"github.com/moduleforge/builder/internal/orchestrator"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/sandbox"
)

func newWorkerCmd() *cobra.Command {
	var (
		temporalHost string
		taskQueue    string
		configPath   string
		redisAddr    string
		sandboxImage string
		anthropicKey string
		logLevel     string
		logFormat    string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Runs the Temporal workflow/activity worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(workerOptions{
				temporalHost: temporalHost,
				taskQueue:    taskQueue,
				configPath:   configPath,
				redisAddr:    redisAddr,
				sandboxImage: sandboxImage,
				anthropicKey: anthropicKey,
				logLevel:     logLevel,
				logFormat:    logFormat,
			})
		},
	}
	cmd.Flags().StringVar(&temporalHost, "temporal-host", "localhost:7233", "Temporal frontend address")
	cmd.Flags().StringVar(&taskQueue, "task-queue", "builder-jobs", "Temporal task queue")
	cmd.Flags().StringVar(&configPath, "config", "/etc/builder/config.yaml", "path to config.yaml")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address for the budget ledger")
	cmd.Flags().StringVar(&sandboxImage, "sandbox-image", "builder-sandbox:latest", "container image used to execute generated adapters")
	cmd.Flags().StringVar(&anthropicKey, "anthropic-api-key-env", "ANTHROPIC_API_KEY", "env var holding the Anthropic API key")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zap log level")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "log encoding: json or console")
	return cmd
}

type workerOptions struct {
	temporalHost, taskQueue, configPath, redisAddr, sandboxImage, anthropicKey string
	logLevel, logFormat                                                       string
}

func runWorker(opts workerOptions) error {
	log, err := events.NewLogger(opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := builderconfig.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	profile, ok := cfg.Profiles["default"]
	if !ok {
		return fmt.Errorf("config %s: missing required %q profile", opts.configPath, "default")
	}

	temporalClient, err := client.Dial(client.Options{HostPort: opts.temporalHost})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer temporalClient.Close()

	router, err := buildRouter(cfg, opts)
	if err != nil {
		return fmt.Errorf("build provider router: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
	ledger := gateway.NewLedger(rdb, time.Hour)
	gw := gateway.New(router, gateway.WithLedger(ledger, "default", 1_000_000))

	runner, err := buildSandboxRunner(profile, opts.sandboxImage)
	if err != nil {
		return fmt.Errorf("build sandbox runner: %w", err)
	}

	registry := orchestrator.NewRegistry()
	activities := orchestrator.NewActivities(gw, runner, orchestrator.FileBundleStore{}, registry)

	w := worker.New(temporalClient, opts.taskQueue, worker.Options{})
	w.RegisterWorkflow(orchestrator.BuildWorkflow)
	w.RegisterActivity(activities)

	log.Info("worker started", zap.String("task_queue", opts.taskQueue))
	return w.Run(worker.InterruptCh())
}

// buildRouter constructs the per-purpose fallback chains from config.yaml's
// routes, instantiating one gateway.Provider per named entry. Only
// "anthropic" and "bedrock" are wired providers in this build; an unknown
// name in the routing table is a configuration error caught at startup
// rather than at first use.
func buildRouter(cfg builderconfig.File, opts workerOptions) (*gateway.Router, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)

	named := func(name string) (gateway.Provider, error) {
		switch name {
		case "anthropic":
			key := os.Getenv(opts.anthropicKey)
			if key == "" {
				return nil, fmt.Errorf("anthropic provider configured but %s is unset", opts.anthropicKey)
			}
			return providers.NewAnthropic(key, anthropic.Model("claude-3-5-sonnet-20241022")), nil
		case "bedrock":
			return providers.NewBedrock(bedrockClient, "anthropic.claude-3-5-sonnet-20241022-v2:0"), nil
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	chains := make([]gateway.ProviderChain, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		chain := gateway.ProviderChain{Purpose: gateway.Purpose(route.Purpose)}
		for _, name := range route.Providers {
			p, err := named(name)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", route.Purpose, err)
			}
			chain.Providers = append(chain.Providers, p)
		}
		chains = append(chains, chain)
	}
	return gateway.NewRouter(chains...), nil
}

func buildSandboxRunner(p policy.Profile, image string) (sandbox.Runner, error) {
	switch p.Backend {
	case policy.BackendKubernetes:
		return sandbox.NewKubeRunner(image, "builder-sandbox", []string{"python3", "-m", "pytest"})
	default:
		return sandbox.NewDockerRunner(image, []string{"python3", "-m", "pytest"}), nil
	}
}
