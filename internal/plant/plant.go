// Package plant wires a power plant's subsystems together and runs their
// lifecycle: peer RPC server, admin registration, broker clients, election
// machinery, and the pollution pipeline.
package plant

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/energymarket/internal/election"
	"github.com/terminal-bench/energymarket/internal/intake"
	"github.com/terminal-bench/energymarket/internal/peer"
	"github.com/terminal-bench/energymarket/internal/pollution"
	"github.com/terminal-bench/energymarket/internal/processor"
	"github.com/terminal-bench/energymarket/internal/registry"
	"github.com/terminal-bench/energymarket/pkg/adminapi"
	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/pkg/config"
	"github.com/terminal-bench/energymarket/shared/model"
)

// ErrPortInUse means the peer RPC port is taken; the operator should pick
// another port. ErrRegistrationConflict from pkg/adminapi means the plant id
// is taken.
var ErrPortInUse = errors.New("peer rpc port already in use")

// Plant is the top-level facade for one power-plant process.
type Plant struct {
	log  zerolog.Logger
	cfg  config.Config
	self model.PlantInfo

	registry   *registry.Registry
	processor  *processor.Processor
	elections  *election.Manager
	peerClient *peer.Client
	peerServer *peer.Server
	admin      *adminapi.Client

	broker  *broker.Client
	intake  *intake.Subscriber
	monitor *pollution.Monitor

	listener net.Listener
	started  bool
}

// New builds a plant and wires the subsystem seams. Nothing touches the
// network until Start.
func New(cfg config.Config, self model.PlantInfo, log zerolog.Logger) *Plant {
	log = log.With().Int("plant_id", self.PlantID).Logger()

	reg := registry.New(self, log)
	client := peer.NewClient(reg, peer.DefaultTimeout, log)
	prices := election.NewPriceGenerator(cfg.PriceMin, cfg.PriceMax, time.Now().UnixNano())
	elections := election.NewManager(reg, client, prices, log)
	proc := processor.New(cfg.ProductionFactor, log)
	elections.BindProducer(proc)
	proc.BindElections(elections)

	return &Plant{
		log:        log,
		cfg:        cfg,
		self:       self,
		registry:   reg,
		processor:  proc,
		elections:  elections,
		peerClient: client,
		peerServer: peer.NewServer(self.PlantID, elections, reg, log),
		admin:      adminapi.NewClient(cfg.AdminBaseURL),
	}
}

// Start brings the plant up: bind the peer RPC listener, register with the
// administration service, seed the registry, connect to the broker, start
// intake and pollution monitoring, then announce presence to every known
// plant. On a failure the peer RPC listener, server and client are shut down
// again; a broker connection made before the failure stays open until Stop.
func (p *Plant) Start(ctx context.Context) error {
	p.log.Info().Msg("starting power plant")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p.self.Port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return errors.Wrapf(ErrPortInUse, "port %d", p.self.Port)
		}
		return errors.Wrapf(err, "binding peer rpc listener on port %d", p.self.Port)
	}
	p.listener = ln
	go func() {
		if err := p.peerServer.Serve(ln); err != nil {
			p.log.Error().Err(err).Msg("peer rpc server stopped unexpectedly")
		}
	}()

	others, err := p.admin.Register(ctx, p.self)
	if err != nil {
		p.teardown()
		return err
	}
	p.registry.AddInitial(others)
	if n := p.registry.Count(); n > 0 {
		p.log.Info().Int("others", n).Msg("registered with admin service, discovered other plants")
	} else {
		p.log.Info().Msg("registered with admin service, first plant on the network")
	}

	b, err := broker.Connect(broker.Config{
		URL:      p.cfg.BrokerURL,
		ClientID: broker.ClientID("plant", p.self.PlantID),
	}, p.log)
	if err != nil {
		p.teardown()
		return errors.Wrap(err, "connecting to broker")
	}
	p.broker = b

	p.intake = intake.NewSubscriber(b, p.cfg.EnergyRequestTopic, asyncSink{proc: p.processor}, p.log)
	if err := p.intake.Start(); err != nil {
		p.teardown()
		return errors.Wrap(err, "starting request intake")
	}

	p.monitor = pollution.NewMonitor(p.self.PlantID, b, p.cfg.PollutionTopic, p.log)
	p.monitor.Start()

	p.announcePresence(ctx)

	p.started = true
	p.log.Info().Msg("power plant fully started")
	return nil
}

// asyncSink hands each intake request to the processor on its own goroutine,
// so ring forwarding never runs on the broker callback.
type asyncSink struct {
	proc *processor.Processor
}

func (s asyncSink) Submit(req model.EnergyRequest) {
	go s.proc.Submit(req)
}

// announcePresence notifies every plant returned by registration, in
// parallel. Unreachable peers are evicted by the peer client.
func (p *Plant) announcePresence(ctx context.Context) {
	others := p.registry.Snapshot()
	if len(others) == 0 {
		return
	}
	g, _ := errgroup.WithContext(ctx)
	for _, target := range others {
		target := target
		g.Go(func() error {
			// Eviction inside the client is the failure handling; an error
			// here must not abort the remaining announcements.
			_ = p.peerClient.AnnouncePresence(target, p.self)
			return nil
		})
	}
	_ = g.Wait()
}

// Stop shuts the plant down: request intake, pollution monitoring, production,
// the broker connection, then the peer RPC client and server.
func (p *Plant) Stop() {
	p.log.Info().Msg("shutting down power plant")
	if p.intake != nil {
		p.intake.Stop()
	}
	if p.monitor != nil {
		p.monitor.Stop()
	}
	if p.started {
		p.processor.Stop()
	}
	if p.broker != nil {
		p.broker.Close()
	}
	p.teardown()
	p.log.Info().Msg("power plant shut down")
}

// teardown closes the network-facing pieces that Start may have opened.
func (p *Plant) teardown() {
	p.peerClient.Close()
	p.peerServer.Shutdown()
	if p.listener != nil {
		_ = p.listener.Close()
		p.listener = nil
	}
}

// Busy exposes the processor state for the interactive prompt.
func (p *Plant) Busy() bool {
	return p.processor.Busy()
}
