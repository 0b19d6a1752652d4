package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is where the mesh config is read from unless -c is given
const DefaultConfigPath = "jade.yaml"

var rootCmd = &cobra.Command{
	Use:   "jade",
	Short: "Jade Mesh Simulator CLI",
	Long: `Jade simulates a mesh of nodes that discover each other with a distance-vector protocol.
Messages are sealed with a mesh-wide key and forwarded hop by hop along the shortest known path.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Initialize Jade",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "mesh",
		Title: "Mesh Commands",
	})
}
