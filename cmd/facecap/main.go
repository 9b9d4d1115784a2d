// Command facecap receives iFacialMocap face tracking datagrams and serves
// the latest head pose and expression weights.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/facecap/internal/monitoring"
)

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "facecap",
		Short:         "iFacialMocap UDP receiver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				monitoring.SetDebug(true)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log every datagram")

	root.AddCommand(
		newServeCmd(),
		newReplayCmd(),
		newBlocksCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	monitoring.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
