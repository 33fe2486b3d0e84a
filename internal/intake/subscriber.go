// Package intake subscribes to the energy-request topic and hands valid
// requests to the request processor.
package intake

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/shared/model"
)

// Sink receives every valid decoded request.
type Sink interface {
	Submit(req model.EnergyRequest)
}

// Subscriber decodes broker messages into energy requests. The broker
// callback only validates and hands off to the sink; the plant's sink runs
// each request on its own goroutine, so no ring forwarding happens on the
// callback.
type Subscriber struct {
	log    zerolog.Logger
	client *broker.Client
	topic  string
	sink   Sink
}

// NewSubscriber builds an intake subscriber over an already-connected broker
// client.
func NewSubscriber(client *broker.Client, topic string, sink Sink, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		log:    log.With().Str("component", "intake").Logger(),
		client: client,
		topic:  topic,
		sink:   sink,
	}
}

// Start subscribes with exactly-once delivery.
func (s *Subscriber) Start() error {
	return s.client.Subscribe(s.topic, broker.QoSExactlyOnce, s.handleMessage)
}

// Stop drops the subscription.
func (s *Subscriber) Stop() {
	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.log.Warn().Err(err).Msg("failed to unsubscribe from energy requests")
	}
}

func (s *Subscriber) handleMessage(payload []byte) {
	var req model.EnergyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.log.Error().Err(err).Str("payload", string(payload)).Msg("dropping malformed energy request")
		return
	}
	if strings.TrimSpace(req.RequestID) == "" || req.AmountKWh <= 0 {
		s.log.Warn().Str("payload", string(payload)).Msg("dropping invalid energy request")
		return
	}

	s.log.Info().Str("request_id", req.RequestID).Int("amount_kwh", req.AmountKWh).Msg("energy request received")
	s.sink.Submit(req)
}
