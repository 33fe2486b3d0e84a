package model_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/energymarket/shared/model"
)

func bid(plantID int, price string) model.Bid {
	return model.Bid{PlantID: plantID, Price: decimal.RequireFromString(price)}
}

func TestBidBetter(t *testing.T) {
	t.Run("lower price wins", func(t *testing.T) {
		assert.True(t, bid(1, "0.20").Better(bid(2, "0.80")))
		assert.False(t, bid(2, "0.80").Better(bid(1, "0.20")))
	})

	t.Run("equal price breaks tie by higher plant id", func(t *testing.T) {
		assert.True(t, bid(2, "0.50").Better(bid(1, "0.50")))
		assert.False(t, bid(1, "0.50").Better(bid(2, "0.50")))
	})

	t.Run("sentinel loses to any valid bid", func(t *testing.T) {
		assert.True(t, bid(1, "0.90").Better(model.SentinelBid()))
		assert.False(t, model.SentinelBid().Better(bid(1, "0.90")))
		assert.False(t, model.SentinelBid().Better(model.SentinelBid()))
	})

	t.Run("relation is antisymmetric over distinct valid bids", func(t *testing.T) {
		bids := []model.Bid{
			bid(1, "0.10"), bid(2, "0.10"), bid(3, "0.50"), bid(4, "0.90"), bid(5, "0.50"),
		}
		for i, a := range bids {
			for j, b := range bids {
				if i == j {
					continue
				}
				assert.NotEqual(t, a.Better(b), b.Better(a),
					"exactly one of %v and %v must be better", a, b)
			}
		}
	})
}

func TestNewPlantInfo(t *testing.T) {
	t.Run("accepts valid info", func(t *testing.T) {
		info, err := model.NewPlantInfo(1, "localhost", 7001, 42)
		require.NoError(t, err)
		assert.True(t, info.Valid())
	})

	t.Run("rejects bad fields", func(t *testing.T) {
		_, err := model.NewPlantInfo(0, "localhost", 7001, 42)
		assert.Error(t, err)
		_, err = model.NewPlantInfo(1, "  ", 7001, 42)
		assert.Error(t, err)
		_, err = model.NewPlantInfo(1, "localhost", 0, 42)
		assert.Error(t, err)
		_, err = model.NewPlantInfo(1, "localhost", 70000, 42)
		assert.Error(t, err)
	})
}

func TestNewEnergyRequest(t *testing.T) {
	t.Run("accepts valid request", func(t *testing.T) {
		req, err := model.NewEnergyRequest("r-1", 5000, 1)
		require.NoError(t, err)
		assert.Equal(t, "r-1", req.RequestID)
	})

	t.Run("rejects blank id and non-positive amount", func(t *testing.T) {
		_, err := model.NewEnergyRequest("   ", 5000, 1)
		assert.Error(t, err)
		_, err = model.NewEnergyRequest("r-1", 0, 1)
		assert.Error(t, err)
	})
}
