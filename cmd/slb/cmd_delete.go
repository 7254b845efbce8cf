package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serverlessbench/slb/internal/config"
)

var (
	deleteProviders       []string
	deleteBenchmarks      []string
	deleteRuntimes        []string
	deleteConfigPath      string
	deleteDeploymentsPath string
)

func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete deployed functions and their deployment records",
		RunE:  deleteCommandE,
	}

	cmd.Flags().StringSliceVarP(&deleteProviders, "providers", "p", nil, "Providers to delete from; default all deployed")
	cmd.Flags().StringSliceVarP(&deleteBenchmarks, "benchmarks", "b", nil, "Benchmarks to delete; default all deployed")
	cmd.Flags().StringSliceVarP(&deleteRuntimes, "runtimes", "r", nil, "Runtimes to delete (jvm, native); default all deployed")
	cmd.Flags().StringVar(&deleteConfigPath, "config", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&deleteDeploymentsPath, "deployments", config.DefaultDeploymentsFile, "Path to the deployments file")

	return cmd
}

func deleteCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(deleteConfigPath)
	if err != nil {
		return err
	}
	deployments, err := config.LoadDeployments(deleteDeploymentsPath)
	if err != nil {
		return err
	}
	targets, err := deployments.Targets(cfg, deleteProviders, deleteBenchmarks, deleteRuntimes)
	if err != nil {
		return err
	}

	providers, cleanup, err := buildProviders(ctx, cfg, providerNames(targets))
	if err != nil {
		return err
	}
	defer cleanup()

	// Memory variants expand to multiple targets per deployment; delete
	// each deployment once.
	deleted := map[string]bool{}
	for _, target := range targets {
		if deleted[target.ID()] {
			continue
		}
		deleted[target.ID()] = true

		fmt.Printf("Deleting %s (%s)...\n", target.ID(), target.FunctionName)
		if err := providers[target.Provider].Delete(ctx, target.FunctionName); err != nil {
			return err
		}
		deployments.Remove(target.Provider, target.Runtime, target.Benchmark)
	}

	return deployments.Save(deleteDeploymentsPath)
}
