package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ignite/campaign-engine/internal/config"
)

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), cfg)
	return nil
}

func printSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "config OK (listen %s)\n", cfg.Server.Addr())
	fmt.Fprintln(w, "platforms:")
	for _, name := range sortedNames(cfg.Platforms) {
		p := cfg.Platforms[name]
		fmt.Fprintf(w, "  %-10s batch=%-6d rate=%s\n", name, p.BatchSize, p.RateLimit)
	}
	fmt.Fprintln(w, "kinds:")
	for _, name := range sortedNames(cfg.Kinds) {
		k := cfg.Kinds[name]
		fmt.Fprintf(w, "  %-12s priority=%-8s platforms=%v\n", name, k.Priority, k.Platforms)
	}
	fmt.Fprintf(w, "redis: %t  postgres: %t  webhook: %t\n",
		cfg.Redis.URL != "", cfg.Postgres.DatabaseURL != "", cfg.Webhook.URL != "")
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
