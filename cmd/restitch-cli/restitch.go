package main

import (
	"github.com/spf13/cobra"
)

func main() {
	command := newRestitchCliCommand()
	cobra.CheckErr(command.Execute())
}

func newRestitchCliCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "restitch-cli [COMMAND] [OPTIONS]",
		Short:         "Responses API stream reconstruction proxy",
		Version:       "v0.1.0",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newConfigCommand())
	return cmd
}
