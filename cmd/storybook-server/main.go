package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"storybook/internal/config"
	"storybook/internal/server/bootstrap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"addr":        "server.addr",
	"environment": "server.environment",
	"executor":    "executor.kind",
	"script":      "executor.script",
	"replay-file": "executor.replay_file",
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "storybook-server",
		Short:         "Stream story generation runs to browsers and terminals",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.RunServer(bootstrap.Options{
				ConfigPath: configPath,
				Overrides:  overridesFromFlags(cmd.Flags()),
				Version:    appVersion(),
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default storybook.yaml in . or ~/.storybook)")
	flags.String("addr", config.DefaultAddr, "Listen address")
	flags.String("environment", "development", "Deployment environment (development, production)")
	flags.String("executor", config.ExecutorGPTScript, "Executor kind (gptscript, replay)")
	flags.String("script", "story-book.gpt", "Story script passed to gptscript")
	flags.String("replay-file", "", "Recorded stream played by the replay executor")
	return cmd
}

// overridesFromFlags returns only the flags set explicitly, so file and
// environment values are not masked by flag defaults.
func overridesFromFlags(flags *pflag.FlagSet) config.Overrides {
	overrides := config.Overrides{}
	for name, key := range flagKeys {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			continue
		}
		overrides[key] = strings.TrimSpace(value)
	}
	return overrides
}

func appVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
