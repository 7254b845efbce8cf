package main

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/serverlessbench/slb/internal/buildcache"
	"github.com/serverlessbench/slb/internal/config"
	"github.com/serverlessbench/slb/internal/deploy"
	"github.com/serverlessbench/slb/internal/invoke"
	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/reconcile"
	"github.com/serverlessbench/slb/internal/results"
	"github.com/serverlessbench/slb/internal/runner"
)

var (
	runProviders       []string
	runBenchmarks      []string
	runRuntimes        []string
	runLoadProfile     string
	runRepetitions     int
	runParallel        bool
	runWorkers         int
	runOutputDir       string
	runConfigPath      string
	runDeploymentsPath string
	runBenchmarkRoot   string
	runCachePath       string
	runSkipBuild       bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run benchmarks against deployed functions",
		Long: `Run executes the configured benchmarks against functions recorded in the
deployments file. With the cold load profile every invocation is preceded by a
forced configuration change, and responses that did not hit a fresh instance
are discarded and retried. After the invocation loop the collected records are
reconciled with provider-side telemetry and written to the results directory.`,
		RunE: runCommandE,
	}

	cmd.Flags().StringSliceVarP(&runProviders, "providers", "p", nil, "Providers to run (aws, azure, gcp, knative); default all deployed")
	cmd.Flags().StringSliceVarP(&runBenchmarks, "benchmarks", "b", nil, "Benchmarks to run; default all deployed")
	cmd.Flags().StringSliceVarP(&runRuntimes, "runtimes", "r", nil, "Runtimes to run (jvm, native); default all deployed")
	cmd.Flags().StringVarP(&runLoadProfile, "load-profile", "l", "cold", "Load profile (cold, warm)")
	cmd.Flags().IntVar(&runRepetitions, "repetitions", 0, "Repetitions per target (overrides config)")
	cmd.Flags().BoolVar(&runParallel, "parallel", false, "Run targets concurrently")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent targets when running in parallel (overrides config)")
	cmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Results directory (overrides config)")
	cmd.Flags().StringVar(&runConfigPath, "config", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&runDeploymentsPath, "deployments", config.DefaultDeploymentsFile, "Path to the deployments file")
	cmd.Flags().StringVar(&runBenchmarkRoot, "benchmark-root", ".", "Benchmark repository root holding the maven wrapper")
	cmd.Flags().StringVar(&runCachePath, "cache-file", config.DefaultCacheFile, "Path to the build cache file")
	cmd.Flags().BoolVar(&runSkipBuild, "skip-build", false, "Skip the pre-run build step entirely")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	profile, err := models.ParseLoadProfile(runLoadProfile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	deployments, err := config.LoadDeployments(runDeploymentsPath)
	if err != nil {
		return err
	}
	targets, err := deployments.Targets(cfg, runProviders, runBenchmarks, runRuntimes)
	if err != nil {
		return err
	}

	providers, cleanup, err := buildProviders(ctx, cfg, providerNames(targets))
	if err != nil {
		return err
	}
	defer cleanup()

	repetitions := cfg.Run.Repetitions
	if runRepetitions > 0 {
		repetitions = runRepetitions
	}
	outputDir := cfg.Run.OutputDir
	if runOutputDir != "" {
		outputDir = runOutputDir
	}
	if outputDir == "" {
		outputDir = results.DefaultDir
	}

	invoker := invoke.New(
		invoke.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Run.InvokeTimeout) * time.Second}),
		invoke.WithRetries(uint64(cfg.Run.InvokeMaxRetries), time.Second),
	)

	opts := []runner.Option{
		runner.WithPolicy(reconcile.RetryPolicy{
			MaxAttempts:  cfg.Run.ReconcileMaxAttempts,
			InitialDelay: time.Duration(cfg.Run.ReconcileInitialDelay) * time.Second,
			Interval:     time.Duration(cfg.Run.ReconcileInterval) * time.Second,
		}),
		runner.WithColdRetry(time.Duration(cfg.Run.ColdRetryDelay)*time.Second, cfg.Run.MaxColdRetries),
	}

	parallel := cfg.Run.Parallel != nil && *cfg.Run.Parallel
	if cmd.Flags().Changed("parallel") {
		parallel = runParallel
	}
	if parallel {
		workers := cfg.Run.Workers
		if runWorkers > 0 {
			workers = runWorkers
		}
		opts = append(opts, runner.WithParallel(workers))
	}

	if !runSkipBuild {
		cache, err := buildcache.Open(runCachePath)
		if err != nil {
			return err
		}
		mvn := &deploy.MavenDeployer{RootPath: runBenchmarkRoot}
		opts = append(opts, runner.WithBuildGate(func(ctx context.Context, t models.BenchmarkTarget) error {
			return deploy.EnsureBuilt(ctx, cache, mvn, buildTargetFor(runBenchmarkRoot, t))
		}))
	}

	r := runner.New(providers, invoker, reconcile.New(), results.NewStore(outputDir), opts...)
	summary, err := r.Run(ctx, targets, profile, repetitions)
	if err != nil {
		return err
	}

	if failed := summary.Failed(); failed > 0 {
		return &PartialFailureError{Failed: failed, Total: len(summary.Results)}
	}
	return nil
}

func buildTargetFor(root string, t models.BenchmarkTarget) deploy.BuildTarget {
	return deploy.BuildTarget{
		Provider:  t.Provider,
		Benchmark: t.Benchmark,
		Native:    t.Runtime == models.RuntimeNative,
		Dir:       filepath.Join(root, "benchmarks", t.Benchmark),
	}
}
