package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalair/mesh/internal/meshnet"
	"github.com/signalair/mesh/internal/transport/looptransport"
	"github.com/signalair/mesh/internal/wire"
)

// simulateCmd runs a small in-process mesh of its own rather than talking
// to a running signalaircore: the admin API is read-only plus unban/reset,
// so there is nothing on the wire to trigger a remote broadcast. This
// gives operators a standalone way to push traffic through a small mesh
// without standing up a real node. After the traffic has run it prints
// each simulated peer's connected-peer count; it does not print security
// events.
func simulateCmd() *cobra.Command {
	var (
		peerCount int
		messages  int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local in-process mesh and print each peer's connected-peer count",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSimulation(peerCount, messages)
		},
	}

	cmd.Flags().IntVar(&peerCount, "peers", 3, "number of simulated peers")
	cmd.Flags().IntVar(&messages, "messages", 10, "number of messages each peer originates")

	return cmd
}

func runSimulation(peerCount, messages int) error {
	hub := looptransport.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	routers := make([]*meshnet.Router, 0, peerCount)
	for i := 0; i < peerCount; i++ {
		id := wire.PeerID(fmt.Sprintf("sim-%d", i))
		r, err := meshnet.New(meshnet.DefaultConfig(), id, hub.Join(id))
		if err != nil {
			return fmt.Errorf("construct simulated peer %s: %w", id, err)
		}
		r.Start(ctx)
		defer r.Stop()
		routers = append(routers, r)
	}

	// Let neighbor discovery settle before originating traffic.
	time.Sleep(50 * time.Millisecond)

	for round := 0; round < messages; round++ {
		for i, r := range routers {
			payload := []byte(fmt.Sprintf("simulated message %d from sim-%d", round, i))
			if _, err := r.Broadcast(payload, wire.TypeChat); err != nil {
				fmt.Printf("sim-%d broadcast failed: %v\n", i, err)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	for i, r := range routers {
		fmt.Printf("sim-%d connected peers: %d\n", i, len(r.ConnectedPeers()))
	}

	return nil
}
