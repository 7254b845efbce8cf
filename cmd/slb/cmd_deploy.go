package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/serverlessbench/slb/internal/buildcache"
	"github.com/serverlessbench/slb/internal/config"
	"github.com/serverlessbench/slb/internal/deploy"
	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider/azure"
)

var (
	deployProviders       []string
	deployBenchmarks      []string
	deployRuntimes        []string
	deployConfigPath      string
	deployDeploymentsPath string
	deployBenchmarkRoot   string
	deployCachePath       string
	deployDataDir         string
)

func newDeployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build benchmark packages and upload benchmark input data",
		Long: `Deploy builds the selected benchmark packages with the provider-specific
maven profile, skipping packages whose sources and artifacts are unchanged
since the last build. For Azure storage benchmarks it also uploads the
benchmark input data to the blob container recorded in the deployments file.`,
		RunE: deployCommandE,
	}

	cmd.Flags().StringSliceVarP(&deployProviders, "providers", "p", nil, "Providers to build for (aws, azure, gcp, knative)")
	cmd.Flags().StringSliceVarP(&deployBenchmarks, "benchmarks", "b", nil, "Benchmarks to build; default all configured")
	cmd.Flags().StringSliceVarP(&deployRuntimes, "runtimes", "r", []string{models.RuntimeJVM}, "Runtimes to build (jvm, native)")
	cmd.Flags().StringVar(&deployConfigPath, "config", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&deployDeploymentsPath, "deployments", config.DefaultDeploymentsFile, "Path to the deployments file")
	cmd.Flags().StringVar(&deployBenchmarkRoot, "benchmark-root", ".", "Benchmark repository root holding the maven wrapper")
	cmd.Flags().StringVar(&deployCachePath, "cache-file", config.DefaultCacheFile, "Path to the build cache file")
	cmd.Flags().StringVar(&deployDataDir, "data-dir", "benchmarks-data", "Directory holding per-benchmark input data")

	return cmd
}

func deployCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(deployProviders) == 0 {
		return &config.ConfigurationError{Msg: "deploy requires at least one --providers value"}
	}
	for _, rt := range deployRuntimes {
		if rt != models.RuntimeJVM && rt != models.RuntimeNative {
			return &config.ConfigurationError{Msg: fmt.Sprintf("unknown runtime %q", rt)}
		}
	}

	cfg, err := config.Load(deployConfigPath)
	if err != nil {
		return err
	}

	benches, err := selectBenchmarks(cfg, deployBenchmarks)
	if err != nil {
		return err
	}

	cache, err := buildcache.Open(deployCachePath)
	if err != nil {
		return err
	}
	mvn := &deploy.MavenDeployer{RootPath: deployBenchmarkRoot}

	for _, prov := range deployProviders {
		for _, rt := range deployRuntimes {
			for _, bench := range benches {
				target := deploy.BuildTarget{
					Provider:  prov,
					Benchmark: bench.Name,
					Native:    rt == models.RuntimeNative,
					Dir:       filepath.Join(deployBenchmarkRoot, "benchmarks", bench.Name),
				}
				if err := deploy.EnsureBuilt(ctx, cache, mvn, target); err != nil {
					return err
				}
			}
		}
	}

	if slices.Contains(deployProviders, "azure") {
		if err := uploadAzureData(cmd, cfg, benches); err != nil {
			return err
		}
	}
	return nil
}

// selectBenchmarks resolves the benchmark filter against the config, or
// returns every configured benchmark when the filter is empty.
func selectBenchmarks(cfg *config.Config, names []string) ([]config.BenchmarkConfig, error) {
	if len(names) == 0 {
		return cfg.Benchmarks, nil
	}
	var out []config.BenchmarkConfig
	for _, name := range names {
		bench, ok := cfg.Benchmark(name)
		if !ok {
			return nil, &config.ConfigurationError{
				Msg: fmt.Sprintf("benchmark %q is not described in the config", name),
			}
		}
		out = append(out, bench)
	}
	return out, nil
}

// uploadAzureData pushes input data for storage benchmarks to the blob
// container recorded at deploy time.
func uploadAzureData(cmd *cobra.Command, cfg *config.Config, benches []config.BenchmarkConfig) error {
	var storage []config.BenchmarkConfig
	for _, bench := range benches {
		if bench.Storage {
			storage = append(storage, bench)
		}
	}
	if len(storage) == 0 {
		return nil
	}

	deployments, err := config.LoadDeployments(deployDeploymentsPath)
	if err != nil {
		return err
	}
	settings, err := config.ProviderSettings[azure.Settings](cfg, "azure")
	if err != nil {
		return err
	}
	az, err := azure.New(settings)
	if err != nil {
		return err
	}

	for _, rt := range deployRuntimes {
		for _, bench := range storage {
			dep, ok := deployments["azure"][rt][bench.Name]
			if !ok || dep.Bucket == "" {
				slog.Warn("no blob container recorded for storage benchmark, skipping upload",
					"benchmark", bench.Name, "runtime", rt)
				continue
			}
			dir := filepath.Join(deployDataDir, bench.Name)
			fmt.Printf("Uploading %s input data to container %s...\n", bench.Name, dep.Bucket)
			if err := az.UploadData(cmd.Context(), dep.Bucket, dir); err != nil {
				return err
			}
		}
	}
	return nil
}
