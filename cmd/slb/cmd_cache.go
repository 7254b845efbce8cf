package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/serverlessbench/slb/internal/buildcache"
	"github.com/serverlessbench/slb/internal/config"
)

var cacheFile string

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the build cache",
		Long: `Manage the build cache.

The cache stores content hashes of benchmark sources and build artifacts so
unchanged packages are not rebuilt. Entries are keyed by provider, benchmark,
and runtime.`,
	}

	cmd.PersistentFlags().StringVar(&cacheFile, "cache-file", config.DefaultCacheFile, "Path to the build cache file")

	cmd.AddCommand(newCacheClearCommand())
	cmd.AddCommand(newCacheStatusCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the build cache",
		Long: `Clear all build cache entries.

The next deploy or run will rebuild every selected benchmark package from
scratch.`,
		RunE: cacheClearE,
	}
}

func newCacheStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List build cache entries",
		RunE:  cacheStatusE,
	}
}

func cacheClearE(cmd *cobra.Command, args []string) error {
	c, err := buildcache.Open(cacheFile)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Printf("Cache cleared: %s\n", cacheFile)
	return nil
}

func cacheStatusE(cmd *cobra.Command, args []string) error {
	c, err := buildcache.Open(cacheFile)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}

	entries := c.Entries()
	if len(entries) == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%d cached build(s) in %s:\n", len(entries), cacheFile)
	for _, k := range keys {
		e := entries[k]
		fmt.Printf("  %-30s src %.12s  artifacts %.12s\n", k, e.SourceHash, e.ArtifactHash)
	}
	return nil
}
