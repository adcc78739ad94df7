package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config controls one streambench run: how big the scheduler is, how many
// worker threads drive it, how aggressively the producer throttles itself,
// and what file it chews through.
type Config struct {
	DataFile    string `mapstructure:"data_file"`
	BlockSize   int    `mapstructure:"block_size"`
	JobCount    uint32 `mapstructure:"job_count"`
	QueueCount  uint32 `mapstructure:"queue_count"`
	FiberCount  uint32 `mapstructure:"fiber_count"`
	StackSize   uint32 `mapstructure:"stack_size"`
	WorkerCount int    `mapstructure:"worker_count"`
	ThrottleMax uint32 `mapstructure:"throttle_max"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// LoadConfig reads streambench.yaml (if present) from the working directory,
// layers STREAMBENCH_-prefixed environment variables on top, and fills in
// defaults sized after the C original's RunRandomParallel (1024 jobs, 1
// queue, 32 fibers, 64KiB stack).
func LoadConfig() (*Config, error) {
	viper.SetConfigName("streambench")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("streambench")
	viper.AutomaticEnv()

	viper.SetDefault("data_file", "data15")
	viper.SetDefault("block_size", 1<<20)
	viper.SetDefault("job_count", 1024)
	viper.SetDefault("queue_count", 1)
	viper.SetDefault("fiber_count", 32)
	viper.SetDefault("stack_size", 64*1024)
	viper.SetDefault("worker_count", 0) // 0 = runtime.NumCPU()
	viper.SetDefault("throttle_max", 0) // 0 = 2 * worker_count, like the original
	viper.SetDefault("metrics_addr", ":9090")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading streambench config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling streambench config: %w", err)
	}
	return &cfg, nil
}

func logConfig(log zerolog.Logger, cfg *Config) {
	log.Info().
		Str("data_file", cfg.DataFile).
		Int("block_size", cfg.BlockSize).
		Uint32("job_count", cfg.JobCount).
		Uint32("queue_count", cfg.QueueCount).
		Uint32("fiber_count", cfg.FiberCount).
		Uint32("stack_size", cfg.StackSize).
		Int("worker_count", cfg.WorkerCount).
		Uint32("throttle_max", cfg.ThrottleMax).
		Str("metrics_addr", cfg.MetricsAddr).
		Msg("streambench configuration loaded")
}
