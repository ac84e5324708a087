package test

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// TEST_DEBUG_EVENTS dumps every fanned-out event during the scenario
	DebugEvents bool `envconfig:"TEST_DEBUG_EVENTS" default:"false"`
	// TEST_SINK_BUFFER sizes the subscriber buffer used by the scenario
	SinkBuffer int `envconfig:"TEST_SINK_BUFFER" default:"16"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
