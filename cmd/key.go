package cmd

import (
	"fmt"

	"github.com/nexusauora-eng/Jade/state"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generates a new mesh encryption key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := state.GenerateKey()
		text, err := key.MarshalText()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(text))
		return err
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(keyCmd)
}
