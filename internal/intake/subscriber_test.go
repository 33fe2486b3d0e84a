package intake

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energymarket/shared/model"
)

type sinkRecorder struct {
	requests []model.EnergyRequest
}

func (s *sinkRecorder) Submit(req model.EnergyRequest) {
	s.requests = append(s.requests, req)
}

func newTestSubscriber(sink Sink) *Subscriber {
	return &Subscriber{log: zerolog.Nop(), topic: "energy/requests", sink: sink}
}

func TestHandleMessage(t *testing.T) {
	t.Run("valid request reaches the sink", func(t *testing.T) {
		sink := &sinkRecorder{}
		s := newTestSubscriber(sink)

		s.handleMessage([]byte(`{"requestId":"R1","amountKWh":5000,"timestamp":1700000000000}`))

		require.Len(t, sink.requests, 1)
		assert.Equal(t, "R1", sink.requests[0].RequestID)
		assert.Equal(t, 5000, sink.requests[0].AmountKWh)
	})

	t.Run("malformed json is dropped", func(t *testing.T) {
		sink := &sinkRecorder{}
		s := newTestSubscriber(sink)

		s.handleMessage([]byte(`{"requestId":`))
		assert.Empty(t, sink.requests)
	})

	t.Run("blank request id is dropped", func(t *testing.T) {
		sink := &sinkRecorder{}
		s := newTestSubscriber(sink)

		s.handleMessage([]byte(`{"requestId":"   ","amountKWh":5000,"timestamp":1}`))
		assert.Empty(t, sink.requests)
	})

	t.Run("non-positive amount is dropped", func(t *testing.T) {
		sink := &sinkRecorder{}
		s := newTestSubscriber(sink)

		s.handleMessage([]byte(`{"requestId":"R1","amountKWh":0,"timestamp":1}`))
		assert.Empty(t, sink.requests)
	})
}
