package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/config"
	"github.com/layerkit/layerkit/pkg/policy"
)

type layerSummary struct {
	ID        string  `json:"id"`
	Type      string  `json:"layerType"`
	URL       string  `json:"url,omitempty"`
	Entries   int     `json:"layerEntries"`
	Visible   bool    `json:"visible"`
	Opacity   float64 `json:"opacity"`
	Queryable bool    `json:"query"`
}

type validateOutput struct {
	Layers []layerSummary `json:"layers"`
	Policy *policy.Result `json:"policy,omitempty"`
}

func summarize(f *config.File) []layerSummary {
	out := make([]layerSummary, 0, len(f.Layers))
	for _, l := range f.Layers {
		out = append(out, layerSummary{
			ID:        l.ID,
			Type:      string(l.LayerType),
			URL:       l.URL,
			Entries:   len(l.LayerEntries),
			Visible:   l.State.IsVisible(),
			Opacity:   l.State.OpacityValue(),
			Queryable: l.State.IsQueryable(),
		})
	}
	return out
}

func printSummary(w io.Writer, path string, f *config.File) {
	fmt.Fprintf(w, "%s: %d layer(s)\n", path, len(f.Layers))
	for _, s := range summarize(f) {
		fmt.Fprintf(w, "  %-20s %-14s visible=%-5t opacity=%.2f query=%-5t entries=%d\n",
			s.ID, s.Type, s.Visible, s.Opacity, s.Queryable, s.Entries)
	}
}

func printPolicyResult(w io.Writer, res *policy.Result) {
	if len(res.Violations) == 0 {
		fmt.Fprintf(w, "policies: %d evaluated, no violations\n", len(res.EvaluatedPolicies))
	} else {
		fmt.Fprintf(w, "policies: %d error(s), %d warning(s), %d info\n",
			res.Count(policy.SeverityError), res.Count(policy.SeverityWarning), res.Count(policy.SeverityInfo))
	}
	for _, v := range res.Violations {
		field := v.Field
		if field == "" {
			field = "-"
		}
		fmt.Fprintf(w, "  [%s] %s %s: %s (%s)\n", v.Severity, v.LayerID, field, v.Message, v.Policy)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  [warning] %s\n", warn)
	}
}

// lintConfig runs the built-in policies plus those under paths over f.
func lintConfig(cmd *cobra.Command, path string, f *config.File, paths []string) (*policy.Result, error) {
	eng, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(paths) > 0 {
		if err := eng.LoadPolicies(cmd.Context(), paths); err != nil {
			return nil, err
		}
	}
	return eng.EvaluateFile(cmd.Context(), path, f)
}

func newValidateCommand() *cobra.Command {
	var (
		policyPaths []string
		noPolicy    bool
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a layer configuration file",
		Long: `Load a layer configuration file, apply defaults and validate it.

YAML, TOML and JSON documents are accepted; the format is picked from the
file extension. After schema validation the layers are checked against the
built-in Rego policies and any policies given with --policy. Policy errors
fail validation; with --strict warnings do too.`,
		Example: `  # Validate and print a summary
  layerctl validate layers.yaml

  # Machine readable output
  layerctl validate --json layers.toml

  # Add site policies and treat warnings as failures
  layerctl validate --policy ./policies --strict layers.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log.Debug().Str("path", path).Msg("Validating layer config")

			f, err := config.Load(path)
			if err != nil {
				return err
			}

			out := validateOutput{Layers: summarize(f)}
			if !noPolicy {
				res, err := lintConfig(cmd, path, f, policyPaths)
				if err != nil {
					return err
				}
				out.Policy = res
			}

			if jsonOutput(cmd) {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), path, f)
				if out.Policy != nil {
					printPolicyResult(cmd.OutOrStdout(), out.Policy)
				}
			}

			if res := out.Policy; res != nil {
				if !res.Allowed {
					return fmt.Errorf("%s: %d policy error(s)", path, res.Count(policy.SeverityError))
				}
				if strict && res.Count(policy.SeverityWarning) > 0 {
					return fmt.Errorf("%s: %d policy warning(s) in strict mode", path, res.Count(policy.SeverityWarning))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "Rego policy file or directory (repeatable)")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "Skip policy checks")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on policy warnings")
	return cmd
}
