package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/randbeacon/headerchain"
	"github.com/rony4d/randbeacon/integration"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness/beacon"
	"github.com/rony4d/randbeacon/randomness/rpcapi"
	"github.com/rony4d/randbeacon/randomness/vdf"
	"github.com/rony4d/randbeacon/store"
)

// node owns every long-lived component of a running beacon.
type node struct {
	cfg   Config
	rules params.Rules
	log   *logrus.Logger

	store  *store.Store
	svc    *beacon.Service
	rpc    *rpc.Server
	http   *http.Server
	devnet *integration.Devnet
}

func newNode(cfg Config, log *logrus.Logger) (*node, error) {
	rules, err := NetworkRules(cfg.Node.Network)
	if err != nil {
		return nil, err
	}
	// Meters created at init already follow --metrics; this covers the
	// config file.
	if cfg.Metrics.Enabled {
		metrics.Enabled = true
	}

	path := cfg.DBPath()
	if path != "" {
		if err := ensureDir(cfg.Node.DataDir); err != nil {
			return nil, err
		}
	}
	stCfg := cfg.Store
	stCfg.Path = path
	db, err := store.Open(stCfg)
	if err != nil {
		return nil, err
	}
	st := store.New(db)

	engine, err := vdf.New(rules.VDF, cfg.VDF.CacheSize, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	svc, err := beacon.New(rules, cfg.Beacon, engine, st, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := svc.Restore(); err != nil {
		st.Close()
		return nil, err
	}

	n := &node{
		cfg:   cfg,
		rules: rules,
		log:   log,
		store: st,
		svc:   svc,
	}
	if cfg.RPC.Serving() {
		if n.rpc, err = rpcapi.NewServer(svc); err != nil {
			st.Close()
			return nil, err
		}
		mux := http.NewServeMux()
		if cfg.RPC.HTTPEnabled {
			mux.Handle("/", n.rpc)
		}
		if cfg.RPC.WSEnabled {
			mux.Handle("/ws", n.rpc.WebsocketHandler(cfg.RPC.Origins()))
		}
		if cfg.Metrics.Enabled {
			mux.Handle("/debug/metrics", exp.ExpHandler(metrics.DefaultRegistry))
		}
		n.http = &http.Server{
			Addr:         cfg.RPC.Endpoint(),
			Handler:      mux,
			ReadTimeout:  cfg.RPC.Timeout(),
			WriteTimeout: cfg.RPC.Timeout(),
		}
	}
	if cfg.Devnet.Enabled {
		n.devnet = integration.NewDevnet(svc, headerchain.New(uint64(time.Now().Unix())), log)
	}
	return n, nil
}

// run blocks until ctx is done or a component fails.
func (n *node) run(ctx context.Context) error {
	n.svc.Start()
	defer n.svc.Stop()

	n.log.WithFields(logrus.Fields{
		"network": n.rules.Name,
		"id":      n.rules.NetworkID,
		"preset":  n.cfg.Node.Preset,
		"prover":  n.cfg.Beacon.Prover,
		"db":      n.cfg.DBPath(),
	}).Info("Starting beacon node")

	if n.devnet != nil {
		// The local header chain starts over on every run, so checkpoints
		// anchored by a previous run are no longer canonical.
		rounds, err := n.svc.HandleReorg(n.devnet.Headers().IsCanonical)
		if err != nil {
			return err
		}
		if len(rounds) > 0 {
			n.log.WithField("rounds", len(rounds)).Warn("Re-anchoring checkpoints on a fresh devnet")
		}
	}

	var ln net.Listener
	if n.http != nil {
		var err error
		if ln, err = net.Listen("tcp", n.http.Addr); err != nil {
			return fmt.Errorf("listen %s: %w", n.http.Addr, err)
		}
		fields := logrus.Fields{"endpoint": "http://" + ln.Addr().String()}
		if n.cfg.RPC.WSEnabled {
			fields["ws"] = "ws://" + ln.Addr().String() + "/ws"
		}
		n.log.WithFields(fields).Info("RPC server started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		n.log.Info("Shutting down beacon node")
		return nil
	})
	if n.http != nil {
		g.Go(func() error {
			if err := n.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			defer n.rpc.Stop()
			return n.http.Shutdown(shutdownCtx)
		})
	}
	if n.devnet != nil {
		g.Go(func() error {
			if err := n.devnet.Run(gctx, n.cfg.Devnet.Period()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (n *node) close() error {
	return n.store.Close()
}
