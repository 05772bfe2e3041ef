package etherman

// Config represents the configuration of one chain's rpc access
type Config struct {
	// L1URL is the rpc url of the origin chain node
	L1URL string `mapstructure:"L1URL"`
	// L2URL is the rpc url of the destination chain node
	L2URL string `mapstructure:"L2URL"`
}
