package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/terminal-bench/energymarket/internal/adminserver"
	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/pkg/config"
	"github.com/terminal-bench/energymarket/pkg/logging"
)

func main() {
	log := logging.New("adminserver")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	b, err := broker.Connect(broker.Config{
		URL:      cfg.BrokerURL,
		ClientID: broker.ClientID("adminserver", os.Getpid()),
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to broker")
		os.Exit(1)
	}
	defer b.Close()

	srv := adminserver.NewServer(b, cfg.PollutionTopic, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.AdminListenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("administration service failed")
			os.Exit(1)
		}
	case <-quit:
		log.Info().Msg("shutting down administration service")
		srv.Shutdown()
	}
}
