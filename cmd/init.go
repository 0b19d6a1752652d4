package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/nexusauora-eng/Jade/state"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample mesh configuration",
	Long:  `Writes a config for a line of nodes sharing a freshly generated key. Edit the graph section to change the topology.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("nodes")
		force, _ := cmd.Flags().GetBool("force")
		outPath := cmd.Flag("output").Value.String()

		cfg := sampleConfig(n)
		probe := *cfg
		state.ExpandConfig(&probe)
		err := state.ConfigValidator(&probe)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		if !force {
			_, err = os.Stat(outPath)
			if err == nil {
				return fmt.Errorf("%s already exists, pass --force to overwrite it", outPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		err = os.WriteFile(outPath, out, 0600)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote a %d node mesh to %s\n", n, outPath)
		return err
	},
	GroupID: "init",
}

func sampleConfig(n int) *state.MeshCfg {
	return &state.MeshCfg{
		NodeCount:                    n,
		RoutingUpdateIntervalSeconds: state.DefaultUpdateDelay.Seconds(),
		EncryptionKey:                state.GenerateKey(),
		SendMode:                     state.SendRouted,
		Codec:                        "proto",
	}
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().IntP("nodes", "n", 5, "Number of nodes in the mesh")
	initCmd.Flags().StringP("output", "o", DefaultConfigPath, "Path to write the config to")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config")
}
