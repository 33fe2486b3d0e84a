package pollution

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/terminal-bench/energymarket/pkg/broker"
	"github.com/terminal-bench/energymarket/shared/model"
)

const publishInterval = 10 * time.Second

// Monitor ties the pipeline together: sensor -> buffer -> aggregator, with a
// publisher goroutine that ships the accumulated averages every interval.
type Monitor struct {
	log     zerolog.Logger
	plantID int
	client  *broker.Client
	topic   string

	sensor     *Sensor
	aggregator *Aggregator

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor builds the pollution pipeline for a plant.
func NewMonitor(plantID int, client *broker.Client, topic string, log zerolog.Logger) *Monitor {
	buffer := NewBuffer()
	return &Monitor{
		log:        log.With().Str("component", "pollution").Logger(),
		plantID:    plantID,
		client:     client,
		topic:      topic,
		sensor:     NewSensor(buffer, time.Now().UnixNano()),
		aggregator: NewAggregator(buffer),
	}
}

// Start launches the sensor, the aggregator, and the publisher.
func (m *Monitor) Start() {
	m.log.Info().Msg("starting pollution monitoring")
	m.stop = make(chan struct{})
	m.sensor.Start()
	m.aggregator.Start()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(publishInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.publish()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop winds the pipeline down in reverse order.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	m.log.Info().Msg("stopping pollution monitoring")
	close(m.stop)
	m.wg.Wait()
	m.aggregator.Stop()
	m.sensor.Stop()
}

// publish ships the averages accumulated since the last tick. An empty list
// publishes nothing; a failed publish is logged and the batch dropped, the
// broker client reconnects on its own.
func (m *Monitor) publish() {
	averages := m.aggregator.GetAndClear()
	if len(averages) == 0 {
		return
	}

	batch := model.PollutionBatch{
		PlantID:                  m.plantID,
		ListComputationTimestamp: time.Now().UnixMilli(),
		Averages:                 averages,
	}
	if err := m.client.Publish(m.topic, broker.QoSExactlyOnce, batch); err != nil {
		m.log.Error().Err(err).Int("averages", len(averages)).Msg("failed to publish pollution batch")
		return
	}
	m.log.Debug().Int("averages", len(averages)).Msg("published pollution batch")
}
