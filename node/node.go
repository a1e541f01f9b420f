// SPDX-License-Identifier: MIT

package node

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"rustchain/config"
	"rustchain/core"
	"rustchain/metrics"
	"rustchain/rpc"
	"rustchain/store"
	"rustchain/types"
)

// Node wires the engines together and runs the background loops: the
// auto-settler, the binding pruner, and the HTTP server.
type Node struct {
	cfg    *config.Config
	params core.Params
	log    *zap.Logger

	db       store.Store
	clock    *types.Clock
	registry *types.ChallengeRegistry
	bindings *types.BindingTable
	ledger   *types.Ledger
	attest   *types.AttestationService
	settle   *types.SettlementEngine
	server   *rpc.Server
	httpSrv  *http.Server

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg *config.Config, params core.Params, log *zap.Logger) (*Node, error) {
	db, err := store.OpenBolt(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	clock, err := types.NewClock(params.GenesisUnix, params.SlotDurationSec, params.SlotsPerEpoch)
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := types.NewChallengeRegistry(time.Duration(params.ChallengeTTLSec) * time.Second)
	ledger := types.NewLedger(db, log)
	bindings := types.NewBindingTable(db, log, time.Duration(params.BindingMaxIdle)*time.Second)
	attest := types.NewAttestationService(
		registry,
		types.DefaultFingerprintPolicy(),
		bindings,
		ledger,
		db,
		log,
		time.Duration(params.FreshnessSkew)*time.Second,
	)
	settle := types.NewSettlementEngine(
		db,
		ledger,
		clock,
		attest,
		log,
		params.EpochPotMicro,
		time.Duration(params.EnrollTTLSec)*time.Second,
	)

	n := &Node{
		cfg:      cfg,
		params:   params,
		log:      log.Named("node"),
		db:       db,
		clock:    clock,
		registry: registry,
		bindings: bindings,
		ledger:   ledger,
		attest:   attest,
		settle:   settle,
		stopCh:   make(chan struct{}),
	}

	if cfg.GenesisPath != "" {
		if err := n.applyGenesisOnce(cfg.GenesisPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	n.server = rpc.NewServer(rpc.Services{
		Clock:    clock,
		Registry: registry,
		Attest:   attest,
		Settle:   settle,
		Ledger:   ledger,
	}, cfg.AdminKey, log)

	return n, nil
}

// Start launches the background loops and the API server.
func (n *Node) Start() error {
	n.registry.Start()

	if n.cfg.AutoSettle {
		n.wg.Add(1)
		go n.settleLoop()
	}
	n.wg.Add(1)
	go n.pruneLoop()

	n.httpSrv = &http.Server{Addr: n.cfg.RPCAddr, Handler: n.server.Handler()}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.log.Info("rpc listening", zap.String("addr", n.cfg.RPCAddr))
		if err := n.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.log.Error("rpc server stopped", zap.Error(err))
		}
	}()

	p := n.clock.Now()
	n.log.Info("node started",
		zap.Uint64("epoch", p.Epoch),
		zap.Uint64("slot", p.Slot))
	return nil
}

// Stop shuts everything down and waits for the loops to drain.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.httpSrv.Shutdown(ctx)
	}
	n.registry.Stop()
	n.wg.Wait()
	if err := n.db.Close(); err != nil {
		n.log.Warn("store close failed", zap.Error(err))
	}
	n.log.Info("node stopped")
}

// settleLoop finalizes the previous epoch shortly after rollover.
// Settle is idempotent, so probing every minute is harmless.
func (n *Node) settleLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			p := n.clock.Now()
			metrics.CurrentEpoch.Set(float64(p.Epoch))
			if p.Anomaly {
				metrics.ClockAnomalies.Inc()
				n.log.Warn("clock anomaly", zap.String("point", p.String()))
			}
			if p.Epoch == 0 {
				continue
			}
			if _, err := n.settle.Settle(p.Epoch - 1); err != nil {
				n.log.Warn("auto settle failed",
					zap.Uint64("epoch", p.Epoch-1),
					zap.Error(err))
			}
		}
	}
}

// pruneLoop ages out idle hardware bindings once an hour.
func (n *Node) pruneLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			removed, err := n.bindings.PruneIdle()
			if err != nil {
				n.log.Warn("binding prune failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				n.log.Info("bindings pruned", zap.Int("removed", removed))
			}
		}
	}
}

func (n *Node) applyGenesisOnce(path string) error {
	const appliedKey = "genesis:applied"
	applied := false
	err := n.db.View(func(tx store.Tx) error {
		applied = tx.Get(store.BucketMeta, appliedKey) != nil
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	g, err := core.LoadGenesis(path)
	if err != nil {
		return err
	}
	if err := core.ApplyGenesis(n.ledger, g); err != nil {
		return err
	}
	n.log.Info("genesis applied", zap.Int("accounts", len(g.Alloc)))
	return n.db.Update(func(tx store.Tx) error {
		return tx.Put(store.BucketMeta, appliedKey, []byte("1"))
	})
}
