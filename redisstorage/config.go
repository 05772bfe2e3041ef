package redisstorage

// Config stores the redis connection configs
type Config struct {
	// Enabled toggles the redis-backed alert dedup; disabled means every
	// alert is sent
	Enabled bool `mapstructure:"Enabled"`

	// If this is true, will use ClusterClient
	IsClusterMode bool `mapstructure:"IsClusterMode"`

	// Host:Port addresses
	Addrs []string `mapstructure:"Addrs"`

	// Username for ACL
	Username string `mapstructure:"Username"`

	// Password for ACL
	Password string `mapstructure:"Password"`

	// DB index
	DB int `mapstructure:"DB"`
}
