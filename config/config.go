package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/alerting"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/bridgetree"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/db"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/metrics"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/redisstorage"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/synchronizer"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config struct
type Config struct {
	Log              log.Config
	SyncDB           db.Config
	Etherman         etherman.Config
	SynchronizerL1   synchronizer.Config
	SynchronizerL2   synchronizer.Config
	BridgeBuilder    bridgetree.Config
	RelayTxManagerL1 relaytxman.Config
	RelayTxManagerL2 relaytxman.Config
	Metrics          metrics.Config
	Alerting         alerting.Config
	Redis            redisstorage.Config
	NetworkConfig
}

// Load loads the configuration
func Load(configFilePath string, network string) (*Config, error) {
	var cfg Config
	viper.SetConfigType("toml")

	err := viper.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}

	if configFilePath != "" {
		dirName, fileName := filepath.Split(configFilePath)

		fileExtension := strings.TrimPrefix(filepath.Ext(fileName), ".")
		fileNameWithoutExtension := strings.TrimSuffix(fileName, "."+fileExtension)

		viper.AddConfigPath(dirName)
		viper.SetConfigName(fileNameWithoutExtension)
		viper.SetConfigType(fileExtension)
	}
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetEnvPrefix("NFTBRIDGE")
	err = viper.ReadInConfig()
	if err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &notFoundErr) {
			log.Infof("config file not found")
		} else {
			log.Infof("error reading config file: ", err)
			return nil, err
		}
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
	if err != nil {
		return nil, err
	}

	if viper.IsSet("NetworkConfig") && network != "" {
		return nil, errors.New("network details are provided in the config file (the [NetworkConfig] section) and with the --network flag. Configure it only once and try again please")
	}
	if !viper.IsSet("NetworkConfig") && network == "" {
		return nil, errors.New("network details are not provided. Please configure the [NetworkConfig] section in your config file, or provide a --network flag")
	}
	if !viper.IsSet("NetworkConfig") && network != "" {
		cfg.loadNetworkConfig(network)
	}
	return &cfg, nil
}
