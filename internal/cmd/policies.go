package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

type policyView struct {
	Route       string `yaml:"route"`
	MaxRequests int    `yaml:"max_requests"`
	Window      string `yaml:"window"`
	Message     string `yaml:"message,omitempty"`
}

type policiesView struct {
	FailurePolicy domain.FailurePolicy `yaml:"failure_policy"`
	Policies      []policyView         `yaml:"policies"`
}

func newPoliciesCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Print the effective rate limit policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), opts.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			view := policiesView{FailurePolicy: a.svc.FailurePolicy()}
			for _, p := range a.policies.Policies() {
				view.Policies = append(view.Policies, policyView{
					Route:       p.RoutePattern,
					MaxRequests: p.MaxRequests,
					Window:      p.Window.String(),
					Message:     p.Message,
				})
			}

			switch output {
			case "table":
				return renderPoliciesTable(cmd.OutOrStdout(), view)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(view)
			default:
				return fmt.Errorf("unsupported output format: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func renderPoliciesTable(w io.Writer, view policiesView) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Route", "Max", "Window", "Message"})
	for _, p := range view.Policies {
		t.AppendRow(table.Row{p.Route, p.MaxRequests, p.Window, p.Message})
	}
	t.AppendFooter(table.Row{"", "", "failure policy", view.FailurePolicy.String()})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}
