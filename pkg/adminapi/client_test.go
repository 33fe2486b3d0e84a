package adminapi_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energymarket/internal/adminserver"
	"github.com/terminal-bench/energymarket/pkg/adminapi"
	"github.com/terminal-bench/energymarket/shared/model"
)

func newBackend(t *testing.T) (*adminserver.Server, *adminapi.Client) {
	t.Helper()
	srv := adminserver.NewServer(nil, "", zerolog.Nop())
	backend := httptest.NewServer(srv.Router())
	t.Cleanup(backend.Close)
	return srv, adminapi.NewClient(backend.URL)
}

func plantInfo(id int, regTime int64) model.PlantInfo {
	return model.PlantInfo{PlantID: id, Address: "localhost", Port: 7000 + id, RegistrationTime: regTime}
}

func TestRegister(t *testing.T) {
	t.Run("returns the plants registered before", func(t *testing.T) {
		_, client := newBackend(t)
		ctx := context.Background()

		first, err := client.Register(ctx, plantInfo(1, 10))
		require.NoError(t, err)
		assert.Empty(t, first)

		second, err := client.Register(ctx, plantInfo(2, 20))
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, 1, second[0].PlantID)
		assert.Equal(t, int64(10), second[0].RegistrationTime)
	})

	t.Run("duplicate id is a registration conflict", func(t *testing.T) {
		_, client := newBackend(t)
		ctx := context.Background()

		_, err := client.Register(ctx, plantInfo(1, 10))
		require.NoError(t, err)

		_, err = client.Register(ctx, plantInfo(1, 99))
		assert.ErrorIs(t, err, adminapi.ErrRegistrationConflict)
	})
}

func TestPlantLookups(t *testing.T) {
	_, client := newBackend(t)
	ctx := context.Background()
	_, err := client.Register(ctx, plantInfo(1, 10))
	require.NoError(t, err)

	t.Run("lists every plant", func(t *testing.T) {
		plants, err := client.Plants(ctx)
		require.NoError(t, err)
		require.Len(t, plants, 1)
		assert.Equal(t, 1, plants[0].PlantID)
	})

	t.Run("fetches one plant", func(t *testing.T) {
		plant, err := client.PlantByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 7001, plant.Port)
	})

	t.Run("unknown plant is ErrNotFound", func(t *testing.T) {
		_, err := client.PlantByID(ctx, 42)
		assert.ErrorIs(t, err, adminapi.ErrNotFound)
	})
}

func TestAverageCO2(t *testing.T) {
	srv, client := newBackend(t)
	ctx := context.Background()

	t.Run("empty store is ErrNoData", func(t *testing.T) {
		_, err := client.AverageCO2(ctx, 0, 100)
		assert.ErrorIs(t, err, adminapi.ErrNoData)
	})

	t.Run("reversed range is ErrInvalidRange", func(t *testing.T) {
		_, err := client.AverageCO2(ctx, 100, 0)
		assert.ErrorIs(t, err, adminapi.ErrInvalidRange)
	})

	t.Run("returns the overall average", func(t *testing.T) {
		srv.Measurements().Add(model.PollutionBatch{PlantID: 1, ListComputationTimestamp: 50, Averages: []float64{10, 30}})
		srv.Measurements().Add(model.PollutionBatch{PlantID: 2, ListComputationTimestamp: 60, Averages: []float64{40}})

		avg, err := client.AverageCO2(ctx, 0, 100)
		require.NoError(t, err)
		assert.InDelta(t, 30.0, avg, 1e-9)
	})
}
