package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glyph/internal/config"
	"glyph/internal/dht"
	"glyph/internal/dispatch"
	"glyph/internal/epoch"
	"glyph/internal/gatewayapi"
	"glyph/internal/identity"
	"glyph/internal/ledger"
	"glyph/internal/minter"
	"glyph/internal/pricing"
	"glyph/internal/quorum"
	"glyph/internal/registry"
	"glyph/internal/replication"
)

func gatewayCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "run the Glyph metering and settlement gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a gateway YAML config file")
	return cmd
}

func runGateway(configPath string) error {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	id, err := identity.LoadOrCreate(cfg.Identity.KeyPath)
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.DBPath, log)
	if err != nil {
		return err
	}
	defer l.Close()

	store := dht.New()
	zapLog, _ := zap.NewProduction()
	defer zapLog.Sync()

	reg := registry.New()
	pricer := pricing.New(store, zapLog.Sugar())
	peers := replication.NewPeers()
	for _, p := range cfg.Peers {
		peers.Add(p)
	}
	gossiper := replication.NewGossiper(l, log)
	dhtPub := replication.NewDHTPublisher(store, log)
	dispatcher := dispatch.New(reg, l, pricer, id, peers, gossiper, dhtPub, log)
	epochEngine := epoch.New(l, id, store, log)
	quorumChecker := quorum.New(l)
	minterGlue := minter.New(l, cfg.MinterURL, log)

	svc := &gatewayapi.Service{
		ID:         id,
		Registry:   reg,
		Ledger:     l,
		Pricer:     pricer,
		Dispatcher: dispatcher,
		Epoch:      epochEngine,
		Quorum:     quorumChecker,
		Minter:     minterGlue,
		Peers:      peers,
		Gossip:     gossiper,
		DHT:        dhtPub,
		Proposals:  replication.NewProposalStore(),
		Log:        log,
	}
	ctrl := gatewayapi.NewController(svc)

	r := mux.NewRouter()
	gatewayapi.Register(r, ctrl)

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: r}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("gateway: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("gateway: serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("gateway: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
