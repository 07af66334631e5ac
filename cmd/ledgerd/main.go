// Command ledgerd runs a single UTXO ledger node: it mines, gossips
// transactions and blocks over UDP, and persists its state between
// restarts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/config"
	"github.com/chainkit/ledger/pkg/logging"
	"github.com/chainkit/ledger/pkg/merkle"
	"github.com/chainkit/ledger/pkg/node"
	"github.com/chainkit/ledger/pkg/p2p"
	"github.com/chainkit/ledger/pkg/persist"
)

func genesisTxIDs(txs []chaintypes.Tx) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID()
	}
	return ids
}

func main() {
	root := &cobra.Command{
		Use:   "ledgerd",
		Short: "ledgerd runs a UTXO ledger node",
		Long: `ledgerd is a peer in a small UTXO-based ledger: it holds a wallet,
validates and mines blocks, and gossips transactions and blocks to the
peers it discovers over a UDP mesh.`,
		RunE: runNode,
	}

	root.Flags().Int("port", 5000, "UDP port to listen on")
	root.Flags().String("seed-addr", "", "bootstrap peer address, host:port")
	root.Flags().String("data-dir", "./data", "snapshot and wallet persistence directory")
	root.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	root.Flags().Int64("fixed-reward", 500, "coinbase reward per block")
	root.Flags().Int("difficulty-bits", 18, "proof-of-work difficulty bits")
	root.Flags().Int64("default-fee", 0, "flat fee attached to transactions this node creates")
	root.Flags().Bool("allow-utxo-from-pool", true, "spend mempool outputs before they confirm")
	root.Flags().Bool("mine", true, "run the mining loop")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func levelFromString(s string) logging.Level {
	switch s {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("ledgerd: load config: %w", err)
	}

	log := logging.New(levelFromString(cfg.LogLevel))
	log.Info("ledgerd starting", "port", cfg.Port, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("ledgerd: create data directory: %w", err)
	}
	store, err := persist.Open(cfg.DataDir + "/snapshot")
	if err != nil {
		return fmt.Errorf("ledgerd: open snapshot store: %w", err)
	}
	defer store.Close()

	snap, err := store.Load()
	if err != nil {
		return fmt.Errorf("ledgerd: load snapshot: %w", err)
	}

	var n *node.Node
	if len(snap.WalletHex) > 0 {
		n, err = node.Restore(cfg, log, snap)
		if err != nil {
			return fmt.Errorf("ledgerd: restore node: %w", err)
		}
		log.Info("ledgerd resumed from snapshot", "height", n.Chain.Height(), "address", n.Address)
	} else {
		n, err = node.New(cfg, log)
		if err != nil {
			return fmt.Errorf("ledgerd: create node: %w", err)
		}
		genesisTxs := []chaintypes.Tx{chaintypes.NewCoinbase(n.Address, cfg.FixedReward, []byte("genesis"))}
		genesis := chaintypes.Block{
			Version:        1,
			Bits:           cfg.DifficultyBits,
			PrevBlockHash:  "",
			MerkleRootHash: merkle.Root(genesisTxIDs(genesisTxs)),
			Txs:            genesisTxs,
		}
		n.Chain.SetGenesis(genesis)
		log.Info("ledgerd created new chain", "address", n.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p2pNode := p2p.New(cfg.Port, cfg.SeedAddr, cfg.AliveTimeout, cfg.UpdateInterval, n, log)
	p2pNode.SetGossip(n)
	n.AttachP2P(p2pNode)

	go func() {
		if err := p2pNode.Run(ctx); err != nil {
			log.Error("ledgerd: p2p loop exited", "error", err)
		}
	}()

	if cfg.AllowUTXOFromPool {
		log.Debug("ledgerd: mempool outputs are spendable before confirmation")
	}

	if mine, _ := cmd.Flags().GetBool("mine"); mine {
		go miningLoop(ctx, n, log)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("ledgerd shutting down")
	cancel()

	snap, err = n.Snapshot()
	if err != nil {
		return fmt.Errorf("ledgerd: build snapshot: %w", err)
	}
	if err := store.Save(snap); err != nil {
		return fmt.Errorf("ledgerd: save snapshot: %w", err)
	}
	return nil
}

// miningLoop repeatedly searches for a valid nonce on a candidate block
// and broadcasts it, the way the reference peer's own run loop
// alternates consensus and broadcast_block.
func miningLoop(ctx context.Context, n *node.Node, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n.Consensus(ctx) {
			if n.BroadcastBlock() {
				log.Info("ledgerd: mined and broadcast a block", "height", n.Chain.Height(), "balance", n.Balance())
			}
		}

		n.BroadcastTxs()

		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}
