package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/serverlessbench/slb/internal/config"
	"github.com/serverlessbench/slb/internal/provider/aws"
	"github.com/serverlessbench/slb/internal/provider/azure"
	"github.com/serverlessbench/slb/internal/provider/gcp"
	"github.com/serverlessbench/slb/internal/provider/knative"
)

var (
	checkConfigPath      string
	checkDeploymentsPath string
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration without running anything",
		Long: `Check validates the configuration file against its schema, decodes every
configured provider section into its typed settings, and reports what is
deployed. Nothing is invoked and no cloud credentials are exercised.`,
		RunE: checkCommandE,
	}

	cmd.Flags().StringVar(&checkConfigPath, "config", config.DefaultConfigFile, "Path to the configuration file")
	cmd.Flags().StringVar(&checkDeploymentsPath, "deployments", config.DefaultDeploymentsFile, "Path to the deployments file")

	return cmd
}

func checkCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(checkConfigPath)
	if err != nil {
		return err
	}
	fmt.Printf("Config %s: OK\n", checkConfigPath)

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checkProviderSettings(cfg, name); err != nil {
			return err
		}
		fmt.Printf("Provider %s: OK\n", name)
	}
	if len(names) == 0 {
		fmt.Println("No providers configured")
	}

	fmt.Printf("Benchmarks configured: %d\n", len(cfg.Benchmarks))

	deployments, err := config.LoadDeployments(checkDeploymentsPath)
	if err != nil {
		return err
	}
	deployed := 0
	for _, runtimes := range deployments {
		for _, benches := range runtimes {
			deployed += len(benches)
		}
	}
	fmt.Printf("Deployments recorded: %d\n", deployed)
	return nil
}

// checkProviderSettings decodes a provider section without building any
// cloud clients, so it works without credentials.
func checkProviderSettings(cfg *config.Config, name string) error {
	switch name {
	case "aws":
		settings, err := config.ProviderSettings[aws.Settings](cfg, name)
		if err != nil {
			return err
		}
		if settings.Region == "" {
			return &config.ConfigurationError{Msg: "aws: region is required"}
		}
	case "gcp":
		settings, err := config.ProviderSettings[gcp.Settings](cfg, name)
		if err != nil {
			return err
		}
		if settings.Project == "" || settings.Region == "" {
			return &config.ConfigurationError{Msg: "gcp: project and region are required"}
		}
	case "azure":
		settings, err := config.ProviderSettings[azure.Settings](cfg, name)
		if err != nil {
			return err
		}
		if settings.Subscription == "" {
			return &config.ConfigurationError{Msg: "azure: subscription is required"}
		}
	case "knative":
		if _, err := config.ProviderSettings[knative.Settings](cfg, name); err != nil {
			return err
		}
	default:
		return &config.ConfigurationError{Msg: fmt.Sprintf("unknown provider %q", name)}
	}
	return nil
}
