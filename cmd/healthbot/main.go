// Command healthbot is the operator CLI.
package main

import (
	"os"

	"github.com/turtacn/RAG-HealthBot/internal/interfaces/cli"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = gitCommit
	cli.BuildDate = buildDate
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
