package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/terminal-bench/energymarket/pkg/config"
)

func valid() config.Config {
	return config.Config{
		ProductionFactor:   1,
		AdminBaseURL:       "http://localhost:8080",
		AdminListenAddr:    ":8080",
		BrokerURL:          "tcp://localhost:1883",
		EnergyRequestTopic: "desm/energy/requests",
		PollutionTopic:     "desm/pollution/co2",
		PriceMin:           0.1,
		PriceMax:           0.9,
		ProviderInterval:   10 * time.Second,
		ProviderMinKWh:     5000,
		ProviderMaxKWh:     15000,
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a complete configuration", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects missing mandatory settings", func(t *testing.T) {
		c := valid()
		c.AdminBaseURL = ""
		assert.Error(t, c.Validate())

		c = valid()
		c.BrokerURL = ""
		assert.Error(t, c.Validate())

		c = valid()
		c.EnergyRequestTopic = ""
		assert.Error(t, c.Validate())
	})

	t.Run("rejects inverted price bounds", func(t *testing.T) {
		c := valid()
		c.PriceMin = 0.9
		c.PriceMax = 0.1
		assert.Error(t, c.Validate())
	})

	t.Run("rejects an out-of-range production factor", func(t *testing.T) {
		c := valid()
		c.ProductionFactor = 0
		assert.Error(t, c.Validate())

		c.ProductionFactor = 16
		assert.Error(t, c.Validate())
	})
}
