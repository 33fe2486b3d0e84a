// Package provider implements the renewable-energy provider that broadcasts
// periodic energy requests for the thermal plants to compete over.
package provider

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/shared/model"
)

// Generator produces random energy requests within the configured kWh range.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	minKWh int
	maxKWh int
}

// NewGenerator builds a request generator.
func NewGenerator(minKWh, maxKWh int, seed int64) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seed)),
		minKWh: minKWh,
		maxKWh: maxKWh,
	}
}

// Next returns a fresh request with a globally unique id.
func (g *Generator) Next() model.EnergyRequest {
	g.mu.Lock()
	amount := g.minKWh + g.rng.Intn(g.maxKWh-g.minKWh+1)
	g.mu.Unlock()
	return model.EnergyRequest{
		RequestID: uuid.NewString(),
		AmountKWh: amount,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Provider publishes a generated request on a fixed cadence.
type Provider struct {
	log       zerolog.Logger
	client    *broker.Client
	topic     string
	interval  time.Duration
	generator *Generator

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a provider over an already-connected broker client.
func New(client *broker.Client, topic string, interval time.Duration, generator *Generator, log zerolog.Logger) *Provider {
	return &Provider{
		log:       log.With().Str("component", "provider").Logger(),
		client:    client,
		topic:     topic,
		interval:  interval,
		generator: generator,
		stop:      make(chan struct{}),
	}
}

// Start launches the publish loop. The first request goes out immediately.
func (p *Provider) Start() {
	p.log.Info().Dur("interval", p.interval).Msg("starting renewable provider")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.publish()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop halts the publish loop.
func (p *Provider) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("renewable provider stopped")
}

func (p *Provider) publish() {
	req := p.generator.Next()
	if err := p.client.Publish(p.topic, broker.QoSExactlyOnce, req); err != nil {
		p.log.Error().Err(err).Str("request_id", req.RequestID).Msg("failed to publish energy request")
		return
	}
	p.log.Info().Str("request_id", req.RequestID).Int("amount_kwh", req.AmountKWh).Msg("published energy request")
}
