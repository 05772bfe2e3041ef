package alerting

import (
	"github.com/badbunnzcorporation-lgtm/nft-bridge/config/types"
)

// Config is the config for the alert producer
type Config struct {
	Enabled bool `mapstructure:"Enabled"`

	// UseFakeProducer keeps alerts in memory instead of kafka; used for
	// tests and local runs without a broker
	UseFakeProducer bool `mapstructure:"UseFakeProducer"`

	// Brokers is the list of address of the kafka brokers
	Brokers []string `mapstructure:"Brokers"`

	// Topic is the topic name to send alerts to
	Topic string `mapstructure:"Topic"`

	// Username and Password are used for SASL_SSL authentication
	Username string `mapstructure:"Username"`
	Password string `mapstructure:"Password"`

	// RootCAPath points to the CA cert used for authentication
	RootCAPath string `mapstructure:"RootCAPath"`

	// DedupWindow collapses identical alerts sent within the window
	DedupWindow types.Duration `mapstructure:"DedupWindow"`
}
