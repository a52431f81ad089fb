package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const deleteBatch = 500

type counterView struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
	TTLMs int64  `json:"ttl_ms"`
}

func newCountersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Inspect and reset rate limit counters in Redis",
	}
	cmd.AddCommand(
		newCountersListCmd(opts),
		newCountersInspectCmd(opts),
		newCountersResetCmd(opts),
	)
	return cmd
}

func newCountersListCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live counters under the key prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output format: %s", output)
			}

			a, err := loadApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			admin, err := a.requireAdmin()
			if err != nil {
				return err
			}

			keys, err := a.counterKeys(cmd)
			if err != nil {
				return err
			}

			views := make([]counterView, 0, len(keys))
			for _, key := range keys {
				c, err := admin.Get(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", key, err)
				}
				// expirou entre o SCAN e o GET
				if c.Count == 0 {
					continue
				}
				views = append(views, counterView{Key: key, Count: c.Count, TTLMs: c.TTL.Milliseconds()})
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			return renderCountersTable(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

func renderCountersTable(w io.Writer, views []counterView) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Count", "TTL"})
	for _, v := range views {
		t.AppendRow(table.Row{v.Key, v.Count, (time.Duration(v.TTLMs) * time.Millisecond).String()})
	}
	t.AppendFooter(table.Row{"", len(views), "counters"})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newCountersInspectCmd(opts *rootOptions) *cobra.Command {
	var identity, route string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the counter of one identity on one route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.requireAdmin(); err != nil {
				return err
			}

			policy, ok := a.policies.Match(route)
			if !ok {
				return fmt.Errorf("no policy matches route %q", route)
			}

			c, err := a.svc.Peek(cmd.Context(), identity, policy)
			if err != nil {
				return err
			}

			remaining := int64(policy.MaxRequests) - c.Count
			if remaining < 0 {
				remaining = 0
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "key:       %s\n", a.svc.Key(identity, policy.RoutePattern))
			fmt.Fprintf(w, "policy:    %s (%d per %s)\n", policy.RoutePattern, policy.MaxRequests, policy.Window)
			fmt.Fprintf(w, "count:     %d\n", c.Count)
			fmt.Fprintf(w, "remaining: %d\n", remaining)
			fmt.Fprintf(w, "ttl:       %s\n", c.TTL)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "client identity (IP, API key or user:<sub>)")
	cmd.Flags().StringVar(&route, "route", "", "route pattern or path")
	_ = cmd.MarkFlagRequired("identity")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}

func newCountersResetCmd(opts *rootOptions) *cobra.Command {
	var (
		identity, route string
		all, yes        bool
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete counters (one identity/route, or every counter with --all --yes)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			single := identity != "" || route != ""
			switch {
			case all && single:
				return errors.New("--all cannot be combined with --identity/--route")
			case all && !yes && !dryRun:
				return errors.New("--all deletes every counter; confirm with --yes")
			case !all && (identity == "" || route == ""):
				return errors.New("either --identity and --route, or --all, is required")
			}

			a, err := loadApp(cmd.Context(), opts.configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			admin, err := a.requireAdmin()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if !all {
				policy, ok := a.policies.Match(route)
				if !ok {
					return fmt.Errorf("no policy matches route %q", route)
				}
				key := a.svc.Key(identity, policy.RoutePattern)
				if dryRun {
					fmt.Fprintf(w, "would delete %s\n", key)
					return nil
				}
				if err := a.svc.Reset(cmd.Context(), identity, policy); err != nil {
					return err
				}
				fmt.Fprintf(w, "deleted %s\n", key)
				return nil
			}

			keys, err := a.counterKeys(cmd)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(w, "would delete %d counters\n", len(keys))
				return nil
			}
			for start := 0; start < len(keys); start += deleteBatch {
				end := min(start+deleteBatch, len(keys))
				if err := admin.Delete(cmd.Context(), keys[start:end]...); err != nil {
					return fmt.Errorf("failed to delete counters: %w", err)
				}
			}
			fmt.Fprintf(w, "deleted %d counters\n", len(keys))
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "client identity")
	cmd.Flags().StringVar(&route, "route", "", "route pattern or path")
	cmd.Flags().BoolVar(&all, "all", false, "delete every counter under the key prefix")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm --all")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be deleted")
	return cmd
}

// counterKeys lista só as chaves de contador, ignorando o que mais
// compartilhar o prefixo (estatísticas, por exemplo).
func (a *app) counterKeys(cmd *cobra.Command) ([]string, error) {
	admin, err := a.requireAdmin()
	if err != nil {
		return nil, err
	}
	raw, err := admin.Keys(cmd.Context(), a.svc.KeyPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to scan counters: %w", err)
	}

	keys := raw[:0]
	for _, k := range raw {
		if a.svc.OwnsKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
