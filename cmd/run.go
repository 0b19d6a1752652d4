package cmd

import (
	"time"

	"github.com/nexusauora-eng/Jade/core"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a mesh simulation",
	Long: `Builds every node described by the config, waits for routes to converge, then injects the messages given with --send.
Messages are written as src:dst:text. Delivered messages are printed to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := simOptions(cmd)
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		return core.Bootstrap(cmd.Flag("config").Value.String(), verbose, opts)
	},
	GroupID: "mesh",
}

func simOptions(cmd *cobra.Command) (core.SimOptions, error) {
	opts := core.SimOptions{
		Out: cmd.OutOrStdout(),
	}
	sends, _ := cmd.Flags().GetStringArray("send")
	for _, s := range sends {
		msg, err := core.ParseMessage(s)
		if err != nil {
			return opts, err
		}
		opts.Sends = append(opts.Sends, msg)
	}
	opts.Duration, _ = cmd.Flags().GetDuration("duration")
	opts.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	return opts, nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", DefaultConfigPath, "Path to the mesh config file")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringArrayP("send", "s", nil, "Message to send once routes converge, as src:dst:text")
	runCmd.Flags().DurationP("duration", "d", 5*time.Second, "How long to keep the mesh running after the messages are sent")
	runCmd.Flags().String("metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")
}
