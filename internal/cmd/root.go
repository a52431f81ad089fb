// Package cmd implementa a CLI do gateway (cobra).
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

// NewRootCmd monta a árvore de comandos; cada chamada devolve uma árvore nova.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Fixed-window rate limiting gateway backed by Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (env GATEWAY_* overrides it)")

	root.AddCommand(
		newServeCmd(opts),
		newPoliciesCmd(opts),
		newCountersCmd(opts),
	)
	return root
}

func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
