// Command markerbot runs the marker bot and its offline maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/m3rciful/markerbot/app/admin"
	"github.com/m3rciful/markerbot/app/bot"
	"github.com/m3rciful/markerbot/app/config"
	"github.com/m3rciful/markerbot/app/store"
	"github.com/m3rciful/markerbot/core/buildinfo"
	corecmd "github.com/m3rciful/markerbot/core/cmd"
)

const defaultConfigPath = "shared/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	runOpts := func() corecmd.Options {
		return corecmd.Options{
			ConfigPath:        configPath,
			DefaultConfigPath: defaultConfigPath,
			LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
				return config.Load(path)
			},
			Bootstrap: bot.Bootstrap,
		}
	}
	runE := func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return corecmd.Run(ctx, runOpts())
	}

	root := &cobra.Command{
		Use:           "markerbot",
		Short:         "Telegram bot for collecting map markers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{Use: "run", Short: "Run the bot (default)", RunE: runE},
		&cobra.Command{
			Use:   "stats",
			Short: "Print table statistics without starting the bot",
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := runOpts().ResolveConfigPath()
				if err != nil {
					return err
				}
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				return printStats(cmd, cfg)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Println("markerbot " + buildinfo.String())
			},
		},
	)
	return root
}

func printStats(cmd *cobra.Command, cfg *config.Config) error {
	st, err := store.New(store.Options{Path: cfg.Markers.TablePath})
	if err != nil {
		return err
	}
	all, err := st.ReadAll(context.Background())
	if err != nil {
		return err
	}
	s := admin.Compute(all, cfg.Quota())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "table\t%s\n", st.Path())
	fmt.Fprintf(w, "markers\t%d\n", s.Total)
	fmt.Fprintf(w, "owners\t%d\n", s.Owners)
	fmt.Fprintf(w, "with link\t%d (%.1f%%)\n", s.WithLink, s.LinkShare()*100)
	fmt.Fprintf(w, "special owners\t%d\n", s.SpecialOwners)
	fmt.Fprintf(w, "quota\t%d / %d\n", s.Quota.Normal, s.Quota.Special)
	for i, c := range s.Top {
		fmt.Fprintf(w, "top %d\t%s\t%d\n", i+1, c.Label(), c.Count)
	}
	return w.Flush()
}
