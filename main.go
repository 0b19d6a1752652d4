package main

import "github.com/nexusauora-eng/Jade/cmd"

func main() {
	cmd.Execute()
}
