package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terminal-bench/energymarket/internal/provider"
	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/pkg/config"
	"github.com/terminal-bench/energymarket/pkg/logging"
)

func main() {
	log := logging.New("provider")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	b, err := broker.Connect(broker.Config{
		URL:      cfg.BrokerURL,
		ClientID: broker.ClientID("provider", os.Getpid()),
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to broker")
		os.Exit(1)
	}
	defer b.Close()

	gen := provider.NewGenerator(cfg.ProviderMinKWh, cfg.ProviderMaxKWh, time.Now().UnixNano())
	p := provider.New(b, cfg.EnergyRequestTopic, cfg.ProviderInterval, gen, log)
	p.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	p.Stop()
}
