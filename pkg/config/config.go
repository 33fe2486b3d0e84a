package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config carries every setting the four binaries read. It is loaded once in
// main and passed down; no package reads viper directly.
type Config struct {
	PlantID          int
	PlantPort        int
	ProductionFactor int // milliseconds of simulated production per kWh

	AdminBaseURL    string
	AdminListenAddr string

	BrokerURL            string
	EnergyRequestTopic   string
	PollutionTopic       string

	PriceMin float64
	PriceMax float64

	ProviderInterval time.Duration
	ProviderMinKWh   int
	ProviderMaxKWh   int
}

// Load reads config.yaml from the working directory or /etc/energymarket,
// applies defaults, and allows ENERGYMARKET_* env overrides. A missing file is
// fine; every key has a default or is prompted for at startup.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/energymarket")
	v.SetEnvPrefix("energymarket")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("plant.id", 0)
	v.SetDefault("plant.port", 0)
	v.SetDefault("plant.production-factor", 1)
	v.SetDefault("admin.server.base-url", "http://localhost:8080")
	v.SetDefault("admin.listen-addr", ":8080")
	v.SetDefault("mqtt.broker.url", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic.energy-requests", "desm/energy/requests")
	v.SetDefault("mqtt.topic.pollution-publish", "desm/pollution/co2")
	v.SetDefault("price.min", 0.1)
	v.SetDefault("price.max", 0.9)
	v.SetDefault("provider.publish-interval", "10s")
	v.SetDefault("provider.min-kwh", 5000)
	v.SetDefault("provider.max-kwh", 15000)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "reading config file")
		}
	}

	cfg := Config{
		PlantID:            v.GetInt("plant.id"),
		PlantPort:          v.GetInt("plant.port"),
		ProductionFactor:   v.GetInt("plant.production-factor"),
		AdminBaseURL:       v.GetString("admin.server.base-url"),
		AdminListenAddr:    v.GetString("admin.listen-addr"),
		BrokerURL:          v.GetString("mqtt.broker.url"),
		EnergyRequestTopic: v.GetString("mqtt.topic.energy-requests"),
		PollutionTopic:     v.GetString("mqtt.topic.pollution-publish"),
		PriceMin:           v.GetFloat64("price.min"),
		PriceMax:           v.GetFloat64("price.max"),
		ProviderInterval:   v.GetDuration("provider.publish-interval"),
		ProviderMinKWh:     v.GetInt("provider.min-kwh"),
		ProviderMaxKWh:     v.GetInt("provider.max-kwh"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.AdminBaseURL == "" {
		return errors.New("admin.server.base-url must be set")
	}
	if c.BrokerURL == "" {
		return errors.New("mqtt.broker.url must be set")
	}
	if c.EnergyRequestTopic == "" || c.PollutionTopic == "" {
		return errors.New("mqtt topics must be set")
	}
	if c.PriceMin < 0 || c.PriceMax < c.PriceMin {
		return errors.Errorf("invalid price bounds [%v, %v]", c.PriceMin, c.PriceMax)
	}
	if c.ProductionFactor < 1 || c.ProductionFactor > 15 {
		return errors.Errorf("plant.production-factor must be in 1..15, got %d", c.ProductionFactor)
	}
	if c.ProviderMinKWh <= 0 || c.ProviderMaxKWh < c.ProviderMinKWh {
		return errors.Errorf("invalid provider kWh range [%d, %d]", c.ProviderMinKWh, c.ProviderMaxKWh)
	}
	return nil
}
