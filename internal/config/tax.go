package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TaxConfig carries the GST percentages applied when a line item does not
// supply its own rate.
type TaxConfig struct {
	SGST float64 `mapstructure:"sgst"`
	CGST float64 `mapstructure:"cgst"`
	IGST float64 `mapstructure:"igst"`
}

func DefaultTaxConfig() TaxConfig {
	return TaxConfig{SGST: 9, CGST: 9, IGST: 18}
}

type TaxConfigHolder struct {
	current atomic.Value // holds TaxConfig
}

// NewTaxConfigHolder reads tax.yml from the usual config locations and keeps
// it hot-reloaded. A missing file is not an error: defaults apply.
func NewTaxConfigHolder() (*TaxConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("tax")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/billbook/config")
	v.AddConfigPath("/etc/billbook")
	v.AddConfigPath(".")
	return loadTaxConfig(v, true)
}

// NewTaxConfigHolderFromFile loads a specific file without watching it.
func NewTaxConfigHolderFromFile(path string) (*TaxConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return loadTaxConfig(v, false)
}

func loadTaxConfig(v *viper.Viper, watch bool) (*TaxConfigHolder, error) {
	v.SetEnvPrefix("BILLBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultTaxConfig()
	v.SetDefault("tax.sgst", defaults.SGST)
	v.SetDefault("tax.cgst", defaults.CGST)
	v.SetDefault("tax.igst", defaults.IGST)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg TaxConfig
	if err := v.UnmarshalKey("tax", &cfg); err != nil {
		return nil, err
	}
	if err := validateTaxConfig(cfg); err != nil {
		return nil, err
	}

	holder := &TaxConfigHolder{}
	holder.current.Store(cfg)

	if watch && fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated TaxConfig
			if err := v.UnmarshalKey("tax", &updated); err != nil {
				zap.L().Warn("tax config reload failed", zap.Error(err))
				return
			}
			if err := validateTaxConfig(updated); err != nil {
				zap.L().Warn("invalid tax config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			zap.L().Info("tax config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *TaxConfigHolder) Get() TaxConfig {
	if h == nil {
		return DefaultTaxConfig()
	}
	cfg, ok := h.current.Load().(TaxConfig)
	if !ok {
		return DefaultTaxConfig()
	}
	return cfg
}

func validateTaxConfig(cfg TaxConfig) error {
	if cfg.SGST < 0 || cfg.CGST < 0 || cfg.IGST < 0 {
		return errors.New("tax rates cannot be negative")
	}
	if cfg.SGST > 100 || cfg.CGST > 100 || cfg.IGST > 100 {
		return errors.New("tax rates cannot exceed 100")
	}
	return nil
}
