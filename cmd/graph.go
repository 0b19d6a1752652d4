package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nexusauora-eng/Jade/core"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Prints the links described by the config",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.ReadConfig(cmd.Flag("config").Value.String())
		if err != nil {
			return err
		}
		edges, err := cfg.GetEdges()
		if err != nil {
			return err
		}
		sb := strings.Builder{}
		for _, e := range edges {
			sb.WriteString(e.String())
			sb.WriteString("\n")
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), sb.String())
		return err
	},
	GroupID: "mesh",
}

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Converges the mesh and prints every routing table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := state.ReadConfig(cmd.Flag("config").Value.String())
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		t, err := core.FromConfig(cfg, slog.New(slog.DiscardHandler), nil)
		if err != nil {
			return err
		}
		t.StartAll()
		defer t.StopAll()
		rounds, err := t.Converge(ctx)
		if err != nil {
			return err
		}

		sb := strings.Builder{}
		sb.WriteString(fmt.Sprintf("converged after %d rounds\n", rounds))
		for _, n := range t.Nodes() {
			sb.WriteString(fmt.Sprintf("\n%s:\n", n.Id()))
			sb.WriteString(n.Table().String())
			sb.WriteString("\n")
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), sb.String())
		return err
	},
	GroupID: "mesh",
}

func init() {
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(inspectCmd)

	graphCmd.Flags().StringP("config", "c", DefaultConfigPath, "Path to the mesh config file")
	inspectCmd.Flags().StringP("config", "c", DefaultConfigPath, "Path to the mesh config file")
	inspectCmd.Flags().Duration("timeout", 10*time.Second, "Give up if routes have not converged by then")
}
