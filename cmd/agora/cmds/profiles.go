package cmds

import (
	"fmt"

	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/profiles"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newProfilesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage chat profiles in the config file",
	}
	cmd.AddCommand(newProfilesListCommand(opts))
	cmd.AddCommand(newProfilesSetCommand(opts))
	cmd.AddCommand(newProfilesDeleteCommand(opts))
	return cmd
}

func editor(opts *rootOptions) (*profiles.Editor, error) {
	path := opts.profilesPath()
	log.Debug().Str("profiles_path", path).Msg("using profiles file")
	return profiles.NewEditor(path)
}

func newProfilesListCommand(opts *rootOptions) *cobra.Command {
	var concise bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := editor(opts)
			if err != nil {
				return err
			}
			set, err := e.Profiles()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range set.List() {
				if concise {
					fmt.Fprintln(out, p.Name)
					continue
				}
				fmt.Fprintf(out, "%s:\n  vendor: %s\n  model: %s\n", p.Name, p.Vendor, p.Model)
				if p.ThinkingBudget > 0 {
					fmt.Fprintf(out, "  thinking_budget: %d\n", p.ThinkingBudget)
				}
				if p.System != "" {
					fmt.Fprintf(out, "  system: %s\n", p.System)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&concise, "concise", "c", false, "Only show profile names")
	return cmd
}

func newProfilesSetCommand(opts *rootOptions) *cobra.Command {
	var (
		vendor string
		p      profiles.Profile
	)
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := editor(opts)
			if err != nil {
				return err
			}
			p.Name = args[0]
			p.Vendor = engines.Vendor(vendor)
			if err := e.Set(p); err != nil {
				return err
			}
			if err := e.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set profile %s\n", p.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor (openai, anthropic, xai, deepseek)")
	cmd.Flags().StringVar(&p.Model, "model", "", "model name")
	cmd.Flags().StringVar(&p.System, "system", "", "system prompt")
	cmd.Flags().Int64Var(&p.ThinkingBudget, "thinking-budget", 0, "reasoning token budget (anthropic)")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newProfilesDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := editor(opts)
			if err != nil {
				return err
			}
			if err := e.Delete(args[0]); err != nil {
				return err
			}
			if err := e.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s\n", args[0])
			return nil
		},
	}
}
