package cmds

import (
	"github.com/odosui/agora/pkg/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	withCaller bool
}

// loadConfig reads the config named by --config, or ./config.yaml when unset.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath)
}

// profilesPath is the file the profile commands edit.
func (o *rootOptions) profilesPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultConfigPath
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "agora",
		Short:         "agora is a multi-vendor LLM chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			return InitLogger(opts.logLevel, opts.logFormat, opts.withCaller, cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ./config.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "auto", "log format (auto, console, json)")
	pf.BoolVar(&opts.withCaller, "with-caller", false, "log caller file and line")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newProfilesCommand(opts))
	root.AddCommand(newChatCommand(opts))
	return root
}
