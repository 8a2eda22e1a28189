package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/chain"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/config"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/linkpass"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/metrics"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/reconcile"
	"github.com/Hackathon-Apps/go-linkpass-api/internal/app/storage"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/ton"
)

var (
	configPath string
)

func init() {
	flag.StringVar(&configPath, "config-path", "configs/linkpass.toml", "path to config file")
}

func main() {
	flag.Parse()

	configuration := config.NewConfiguration()
	if _, err := toml.DecodeFile(configPath, configuration); err != nil {
		log.Fatal(err)
	}
	if err := configuration.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := configureLogger(configuration)
	if err != nil {
		log.Fatal(err)
	}

	db, err := storage.Connect(configuration, logger)
	if err != nil {
		log.Fatal(err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	pool := liteclient.NewConnectionPool()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pool.AddConnectionsFromConfigUrl(ctx, configuration.TonConfigURL); err != nil {
		// The REST indexer tier still answers without liteservers.
		logger.WithError(err).Warn("ton liteserver pool is empty")
	}
	cancel()
	api := ton.NewAPIClient(pool)

	tonFinder := chain.NewTonFinder(
		chain.NewTonRPC(api, m),
		chain.NewTonCenter(configuration.TonCenterAPI, configuration.TonCenterAPIKey,
			&http.Client{Timeout: configuration.UpstreamTimeout()}, m),
		chain.TonFinderOptions{
			Limit:   uint32(configuration.TonTxLimit),
			Window:  configuration.MatchWindow(),
			Timeout: configuration.UpstreamTimeout(),
			Logger:  logger,
			Metrics: m,
		},
	)

	solanaLedger := chain.NewSolanaRPC(rpc.New(configuration.SolanaRPCURL), m)
	solanaFinder := chain.NewSolanaFinder(solanaLedger, chain.SolanaFinderOptions{
		Window:  configuration.MatchWindow(),
		Timeout: configuration.UpstreamTimeout(),
		Logger:  logger,
		Metrics: m,
	})

	gateways := chain.NewRegistry(
		chain.NewTonGateway(tonFinder, configuration.TonMainnet()),
		chain.NewSolanaGateway(solanaLedger, solanaFinder, chain.SolanaGatewayOptions{
			Cluster:   configuration.SolanaCluster,
			FeePayer:  configuration.SolanaFeePayer,
			ActionURL: strings.TrimRight(configuration.PublicBaseURL, "/") + "/api/actions/buy-pass",
			Label:     configuration.SolanaPayLabel,
		}),
	)

	reconciler := reconcile.New(db, gateways, reconcile.Options{
		Window:  configuration.MatchWindow(),
		Logger:  logger,
		Metrics: m,
	})

	server := linkpass.NewServer(configuration, logger, db, gateways, reconciler, m, prometheus.DefaultGatherer)
	if err := server.Start(); err != nil {
		log.Fatal(err)
	}
}

func configureLogger(cfg *config.Configuration) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	formatter := &logrus.TextFormatter{}
	formatter.FullTimestamp = true
	formatter.TimestampFormat = "2006-01-02 15:04:05.000"

	logger.SetFormatter(formatter)
	logger.SetLevel(level)
	return logger, nil
}
