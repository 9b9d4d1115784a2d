package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/monitor"
	"github.com/banshee-data/facecap/internal/mocap/network"
	"github.com/banshee-data/facecap/internal/mocap/parse"
	"github.com/banshee-data/facecap/internal/mocap/receiver"
	"github.com/banshee-data/facecap/internal/mocap/store"
)

type replayOutput struct {
	File      string         `json:"file"`
	Packets   int            `json:"packets"`
	Datagrams int            `json:"datagrams"`
	Duration  string         `json:"duration"`
	Totals    monitor.Totals `json:"totals"`
	Final     mocap.Snapshot `json:"final"`
}

func newReplayCmd() *cobra.Command {
	var (
		port  int
		speed float64
	)
	cmd := &cobra.Command{
		Use:   "replay <capture.pcap>",
		Short: "Decode a packet capture and print the final state",
		Long: `Reads a pcap or pcapng capture, feeds every matching UDP payload
through the decoder into a fresh store and prints the resulting
snapshot as JSON. Use --port 0 to accept every destination port.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store.New()
			stats := monitor.NewPacketStats(nil)
			res, err := network.ReadPCAPFile(cmd.Context(), args[0], network.ReplayConfig{
				Port:  port,
				Speed: speed,
			}, parse.NewDecoder(), s, stats)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(replayOutput{
				File:      args[0],
				Packets:   res.Packets,
				Datagrams: res.Datagrams,
				Duration:  res.Duration.Round(time.Millisecond).String(),
				Totals:    stats.Totals(),
				Final:     s.Snapshot(),
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", receiver.DefaultPort, "destination UDP port to replay, 0 for all")
	cmd.Flags().Float64Var(&speed, "speed", 0, "pace by capture timestamps (1 = real time, 0 = as fast as possible)")
	return cmd
}
