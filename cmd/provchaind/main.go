// Command provchaind is the node daemon: it wires the RDF store, chain,
// PoA consensus, peer network, sync engine, and integrity monitor
// together per the §6 "Config surface" of the specification. Grounded on
// the teacher's cmd/synnergy/main.go (a thin cobra root with one
// subcommand per subsystem), generalized from the teacher's mock testnet/
// token commands to this module's actual daemon lifecycle.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/provchain/core/canon"
	core "github.com/provchain/core/core"
	"github.com/provchain/core/integrity"
	"github.com/provchain/core/ontology"
	"github.com/provchain/core/p2p"
	"github.com/provchain/core/pkg/config"
	"github.com/provchain/core/rdf"
	"github.com/provchain/core/syncengine"
)

func main() {
	root := &cobra.Command{Use: "provchaind"}
	root.AddCommand(startCmd())
	root.AddCommand(keygenCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen [path]",
		Short: "generate a hex-encoded ed25519 authority keypair file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, priv, err := ed25519.GenerateKey(nil)
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], []byte(hex.EncodeToString(priv.Seed())), 0o600)
		},
	}
	return cmd
}

func startCmd() *cobra.Command {
	var ontologyPath string
	cmd := &cobra.Command{
		Use:   "start [config]",
		Short: "start a provchain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ""
			if len(args) > 0 {
				cfgPath = args[0]
			}
			return run(cfgPath, ontologyPath)
		},
	}
	cmd.Flags().StringVar(&ontologyPath, "ontology", "", "YAML ontology manifest to load at boot (required on first start of a fresh store)")
	return cmd
}

func run(cfgPath, ontologyPath string) error {
	var cfg *config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("provchaind: load config: %w", err)
		}
		cfg = loaded
	} else {
		c := config.Default()
		cfg = &c
	}

	logger := logrus.StandardLogger()
	logger.Infof("provchaind starting: network_id=%s authority=%v", cfg.Network.NetworkID, cfg.Consensus.IsAuthority)

	store := rdf.NewStore()
	if cfg.Storage.Persistent {
		persist, err := rdf.OpenBoltPersistence(cfg.Storage.DataDir + "/store.bolt")
		if err != nil {
			return fmt.Errorf("provchaind: open persistence: %w", err)
		}
		if err := store.WithPersistence(persist); err != nil {
			return fmt.Errorf("provchaind: replay persisted graphs: %w", err)
		}
	}
	if cfg.Storage.CacheSizeMB > 0 {
		store.WithCache(int(cfg.Storage.CacheSizeMB))
	}

	if ontologyPath != "" {
		if _, ok := store.Triples(core.OntologyGraphIRI); !ok {
			if err := ontology.LoadFile(store, ontologyPath); err != nil {
				return fmt.Errorf("provchaind: load ontology: %w", err)
			}
		}
	}

	authorityKeys, err := decodeHexKeys(cfg.Consensus.AuthorityKeys)
	if err != nil {
		return fmt.Errorf("provchaind: parse authority_keys: %w", err)
	}
	authorities := core.NewAuthoritySet(authorityKeys, cfg.Consensus.BlockInterval, cfg.Consensus.GraceSlots)

	var priv ed25519.PrivateKey
	var pub []byte
	if cfg.Consensus.IsAuthority {
		priv, pub, err = loadOrCreateKey(cfg.Consensus.AuthorityKeyPath)
		if err != nil {
			return fmt.Errorf("provchaind: load authority key: %w", err)
		}
		if !authorities.IsAuthority(pub) {
			logger.Warn("provchaind: this node's key is not present in consensus.authority_keys")
		}
	}

	chain := core.NewChain()
	bus := &core.EventBus{}
	coordinator := core.NewAtomicCoordinator(store, chain, bus)
	pool := core.NewTxPool(1024)
	consensus := core.NewConsensus(logger, store, chain, coordinator, authorities, pool, bus,
		cfg.Consensus.IsAuthority, priv, pub, int(cfg.Consensus.MaxBlockSize), cfg.Consensus.BlockInterval)

	// A persistent store's WithPersistence call above already replayed every
	// payload/meta graph's triples into memory, but Chain.blocks itself is
	// never persisted directly: rebuild it from the meta graph alone before
	// falling back to a fresh genesis, so a restart never re-geneses over an
	// already-committed chain (spec §1 "persistence and recovery", §3).
	if metaTriples, ok := store.Triples(core.MetaGraphIRI); ok && len(metaTriples) > 0 {
		blocks, err := core.ParseMetaTriples(metaTriples)
		if err != nil {
			return fmt.Errorf("provchaind: parse persisted meta graph: %w", err)
		}
		if err := chain.Restore(blocks); err != nil {
			return fmt.Errorf("provchaind: restore chain from meta graph: %w", err)
		}
		logger.Infof("provchaind: recovered chain height=%d from persisted meta graph", chain.Length())
	}

	if chain.Length() == 0 {
		genesisHash := core.Hash(canon.EmptyDigest)
		if err := store.InsertGraph(core.BlockIRI(0), nil); err != nil {
			return fmt.Errorf("provchaind: create genesis payload graph: %w", err)
		}
		genesisBlock, err := chain.Genesis(core.BlockIRI(0), genesisHash)
		if err != nil {
			return fmt.Errorf("provchaind: create genesis: %w", err)
		}
		if err := store.AddTriples(core.MetaGraphIRI, core.BuildMetaTriples(genesisBlock)); err != nil {
			return fmt.Errorf("provchaind: record genesis meta triples: %w", err)
		}
	}

	roles := core.NewRoleRegistry(store)
	node := &core.Node{
		Store: store, Chain: chain, Pool: pool, Coordinator: coordinator,
		Authorities: authorities, Permissions: roles, Bus: bus,
	}

	validator, err := integrity.NewValidator(logger, chain, store, 256)
	if err != nil {
		return fmt.Errorf("provchaind: create validator: %w", err)
	}
	node.IntegrityStatusFunc = func() any { return validator.Validate(integrity.LevelStandard) }

	alertSink := integrity.NewChannelAlertSink(32)
	monitorLevel := parseLevel(cfg.Integrity.MonitorLevel)
	monitor := integrity.NewMonitor(logger, validator, alertSink, monitorLevel, cfg.Integrity.MonitorInterval)

	p2pNode, err := p2p.NewNode(p2p.Config{
		NetworkID:      cfg.Network.NetworkID,
		ListenAddr:     fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.Network.ListenPort),
		BootstrapPeers: cfg.Network.KnownPeers,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
		PeerTimeout:    cfg.Network.PeerTimeout,
		MaxPeers:       int(cfg.Network.MaxPeers),
	}, logger)
	if err != nil {
		return fmt.Errorf("provchaind: start p2p node: %w", err)
	}
	p2pNode.ServeBlockSync(syncengine.ChainBlockResponseProvider{Chain: chain, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consensus.Start(ctx)
	monitor.Start(ctx)
	go bridgeAlerts(ctx, logger, alertSink)
	go driveSyncEngine(ctx, logger, chain, consensus, bus, p2pNode)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("provchaind shutting down")
	monitor.Stop()
	return p2pNode.Close()
}

// driveSyncEngine repeatedly picks the first connected session (if any)
// and runs one catch-up round against it, matching spec §4.8's "runs
// periodically, or on HeadAnnounce indicating the peer is ahead" trigger
// in its simplest form: a fixed-interval poll rather than an event-driven
// wakeup, since nothing here yet subscribes to HeadAnnounce gossip
// directly.
func driveSyncEngine(ctx context.Context, logger *logrus.Logger, chain *core.Chain, consensus *core.Consensus, bus *core.EventBus, node *p2p.Node) {
	engine := syncengine.NewEngine(logger, chain, consensus, bus, 64)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, session := range node.Sessions() {
				peer := syncengine.NewP2PPeerClient(node, session.PeerID, session, func(reason string) {
					logger.Warnf("sync: blacklisting peer %s: %s", session.PeerID, reason)
				})
				if err := engine.RunOnce(ctx, peer); err != nil {
					logger.Warnf("sync: round against %s failed: %v", session.PeerID, err)
				}
			}
		}
	}
}

func bridgeAlerts(ctx context.Context, logger *logrus.Logger, sink *integrity.ChannelAlertSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-sink.Alerts():
			logger.WithFields(logrus.Fields{
				"level":    alert.Level.String(),
				"status":   alert.Status.String(),
				"kind":     alert.Finding.Kind,
				"severity": alert.Finding.Severity,
				"locus":    alert.Finding.Locus,
			}).Warn("integrity alert")
		}
	}
}

func parseLevel(s string) integrity.Level {
	switch s {
	case "Minimal":
		return integrity.LevelMinimal
	case "Comprehensive":
		return integrity.LevelComprehensive
	case "Full":
		return integrity.LevelFull
	default:
		return integrity.LevelStandard
	}
}

func decodeHexKeys(hexKeys []string) ([][]byte, error) {
	keys := make([][]byte, 0, len(hexKeys))
	for _, hk := range hexKeys {
		k, err := hex.DecodeString(hk)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func loadOrCreateKey(path string) (ed25519.PrivateKey, []byte, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(nil)
		return priv, priv.Public().(ed25519.PublicKey), err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, err
		}
		_, priv, genErr := ed25519.GenerateKey(nil)
		if genErr != nil {
			return nil, nil, genErr
		}
		if writeErr := os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())), 0o600); writeErr != nil {
			return nil, nil, writeErr
		}
		return priv, priv.Public().(ed25519.PublicKey), nil
	}
	seed, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("malformed authority key file %s: %w", path, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed25519.PublicKey), nil
}
