package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/kbukum/orderedpipe/config"
	"github.com/kbukum/orderedpipe/version"
)

const (
	appName  = config.ServiceName
	appShort = "orderedpipe runs line-oriented jobs with bounded, order-preserving concurrency"
	appLong  = `
		orderedpipe reads lines from files or standard input and processes up to
		--factor of them at once. Results are always written in input order.

		Settings come from orderedpipe.yml, a .env file and ORDEREDPIPE_*
		environment variables. Flags override all of them.`

	configFlagName   = "config"
	factorFlagName   = "factor"
	workersFlagName  = "workers"
	executorFlagName = "executor"
	logLevelFlagName = "log-level"
)

var allExecutors = []string{config.ExecutorOwned, config.ExecutorPool, config.ExecutorLimited}

// rootFlags holds the persistent flags shared across the command tree.
type rootFlags struct {
	configFile string
	factor     int
	workers    int
	executor   string
	logLevel   string
}

// addFlags registers the persistent CLI flags on cmd.
func (f *rootFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.configFile, configFlagName, "", "path to a config file (default: searched)")
	flags.IntVarP(&f.factor, factorFlagName, "p", 0, "number of lines processed at once (default: number of CPUs)")
	flags.IntVar(&f.workers, workersFlagName, 0, "workers of a shared executor (default: factor)")
	flags.StringVar(&f.executor, executorFlagName, "", "executor kind (possible values: "+strings.Join(allExecutors, ", ")+")")
	flags.StringVar(&f.logLevel, logLevelFlagName, "", "set the logging level (possible values: debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootCmd constructs the root Cobra command. The app is set up before any
// subcommand runs; subcommands tear it down through app.run.
func rootCmd() *cobra.Command {
	flag := &rootFlags{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: heredoc.Doc(appShort),
		Long:  heredoc.Doc(appLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == versionCmdName {
				return nil
			}
			return a.setup(cmd, flag)
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln(err)
		_ = c.Usage()
		return err
	})

	flag.addFlags(cmd)
	cmd.AddCommand(
		digestCmd(a),
		grepCmd(a),
		versionCmd(),
	)
	return cmd
}

const versionCmdName = "version"

// versionCmd prints version information.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   versionCmdName,
		Short: "Display the " + appName + " version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
