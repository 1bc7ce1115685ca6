// Package config loads and hot-reloads the replay engine's tunables:
// per-market defaults, the multiplexer's wall-clock phase schedule,
// and logging level. Modeled on the teacher's HFTConfigManager.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// MarketDefaults carries per-market bit-width and cage-rate settings.
// Package axob does not read them: its bit widths (MaxPrice, MaxQty,
// MaxLevelQty) and cage bounds (CYBCageUpper/CYBCageLower) are
// compile-time constants.
type MarketDefaults struct {
	PriceBits int   `yaml:"price_bits" default:"25"`
	QtyBits   int   `yaml:"qty_bits" default:"30"`
	LevelBits int   `yaml:"level_bits" default:"38"`
	CageRate  int64 `yaml:"cage_rate" default:"2"` // percent, i.e. 1.0x +/- CageRate%
}

// PhaseSchedule is the Multiplexer's wall-clock AX_SIGNAL schedule
// (§4.10), expressed as HHMMSS integers in local exchange time.
type PhaseSchedule struct {
	OpenCallBgn   int `yaml:"open_call_bgn" default:"91500"`
	OpenCallEnd   int `yaml:"open_call_end" default:"92500"`
	AMTradingBgn  int `yaml:"am_trading_bgn" default:"93000"`
	AMTradingEnd  int `yaml:"am_trading_end" default:"113000"`
	PMTradingBgn  int `yaml:"pm_trading_bgn" default:"130000"`
	PMTradingEnd  int `yaml:"pm_trading_end" default:"150000"`
	AllEnd        int `yaml:"all_end" default:"150500"`
}

// LOBConfig is the top-level reloadable configuration object.
type LOBConfig struct {
	LogLevel string `yaml:"log_level" default:"info"`
	LogDebug bool   `yaml:"log_debug" default:"false"`

	Markets  map[string]MarketDefaults `yaml:"markets"`
	Schedule PhaseSchedule             `yaml:"schedule"`

	ReplayParallel bool `yaml:"replay_parallel" default:"false"`
	ReplayWorkers  int  `yaml:"replay_workers" default:"4"`
}

// Manager loads LOBConfig from a YAML file via viper and hot-reloads
// it on change via fsnotify, the way the teacher's HFTConfigManager
// reloads HFTManagerConfig.
type Manager struct {
	viper      *viper.Viper
	configPath string

	config atomic.Value // *LOBConfig

	watcher    *fsnotify.Watcher
	callbacks  []func(*LOBConfig)
	cbLock     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager loads configPath and starts watching it for changes. If
// configPath does not exist, built-in defaults are used.
func NewManager(configPath string) (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		viper:      viper.New(),
		configPath: configPath,
		watcher:    watcher,
		ctx:        ctx,
		cancel:     cancel,
	}

	m.viper.SetConfigFile(configPath)
	m.viper.SetConfigType("yaml")
	m.viper.SetEnvPrefix("AXOB")
	m.viper.AutomaticEnv()

	m.setDefaults()

	if err := m.loadConfig(); err != nil {
		cancel()
		return nil, err
	}

	if err := m.startWatcher(); err != nil {
		cancel()
		return nil, err
	}

	return m, nil
}

func (m *Manager) setDefaults() {
	m.viper.SetDefault("log_level", "info")
	m.viper.SetDefault("log_debug", false)
	m.viper.SetDefault("replay_parallel", false)
	m.viper.SetDefault("replay_workers", 4)

	m.viper.SetDefault("schedule.open_call_bgn", 91500)
	m.viper.SetDefault("schedule.open_call_end", 92500)
	m.viper.SetDefault("schedule.am_trading_bgn", 93000)
	m.viper.SetDefault("schedule.am_trading_end", 113000)
	m.viper.SetDefault("schedule.pm_trading_bgn", 130000)
	m.viper.SetDefault("schedule.pm_trading_end", 150000)
	m.viper.SetDefault("schedule.all_end", 150500)

	m.viper.SetDefault("markets.stock.price_bits", 25)
	m.viper.SetDefault("markets.stock.qty_bits", 30)
	m.viper.SetDefault("markets.stock.level_bits", 38)
	m.viper.SetDefault("markets.stock.cage_rate", 2)
}

func (m *Manager) loadConfig() error {
	if _, err := os.Stat(m.configPath); err == nil {
		if err := m.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &LOBConfig{}
	// Decode by the yaml tags so keys like "log_level" reach LogLevel.
	if err := m.viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m.config.Store(cfg)
	m.notifyCallbacks(cfg)
	return nil
}

func (m *Manager) startWatcher() error {
	configDir := filepath.Dir(m.configPath)
	if err := m.watcher.Add(configDir); err != nil {
		// A missing config directory just means defaults-only operation;
		// hot reload is unavailable but initial load already succeeded.
		return nil
	}

	m.wg.Add(1)
	go m.watchLoop()
	return nil
}

func (m *Manager) watchLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = m.loadConfig()
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) notifyCallbacks(cfg *LOBConfig) {
	m.cbLock.RLock()
	defer m.cbLock.RUnlock()
	for _, cb := range m.callbacks {
		cb(cfg)
	}
}

// GetConfig returns the currently active configuration.
func (m *Manager) GetConfig() *LOBConfig {
	cfg, _ := m.config.Load().(*LOBConfig)
	if cfg == nil {
		return &LOBConfig{}
	}
	return cfg
}

// RegisterCallback registers a function invoked on every later load of
// the config. The initial load runs inside NewManager, before any
// callback can be registered, so callbacks do not see it.
func (m *Manager) RegisterCallback(cb func(*LOBConfig)) {
	m.cbLock.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.cbLock.Unlock()
}

// Close stops the watcher goroutine.
func (m *Manager) Close() error {
	m.cancel()
	err := m.watcher.Close()
	m.wg.Wait()
	return err
}
