// Package config provides configuration loading and validation for wireframe.
// Supports YAML files with environment variable overrides.
package config

import (
	"time"
)

// Framings accepted by ServerConfig.Framing.
const (
	FramingKafka      = "kafka"
	FramingLength     = "length"
	FramingLine       = "line"
	FramingCompressed = "compressed"
)

// Config holds all configuration for a wireframe process.
type Config struct {
	Decoder       DecoderConfig       `yaml:"decoder"`
	Server        ServerConfig        `yaml:"server"`
	Pipe          PipeConfig          `yaml:"pipe"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DecoderConfig holds the buffered decoder settings.
type DecoderConfig struct {
	// Capacity is the per-stream buffer size in bytes. It bounds the largest
	// decodable item.
	Capacity int `yaml:"capacity" env:"WIREFRAME_DECODER_CAPACITY"`
}

type ServerConfig struct {
	ListenAddr   string        `yaml:"listenAddr" env:"WIREFRAME_LISTEN_ADDR"`
	Framing      string        `yaml:"framing" env:"WIREFRAME_FRAMING"`
	ReadTimeout  time.Duration `yaml:"readTimeout" env:"WIREFRAME_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"WIREFRAME_WRITE_TIMEOUT"`
	// MaxItemSize bounds a single frame. Zero leaves the decoder capacity as
	// the only limit.
	MaxItemSize int `yaml:"maxItemSize" env:"WIREFRAME_MAX_ITEM_SIZE"`
	// Codec compresses responses of the compressed framing.
	Codec string `yaml:"codec" env:"WIREFRAME_CODEC"`
}

// PipeConfig configures the stdin/stdout pipe command.
type PipeConfig struct {
	ChunkSize int           `yaml:"chunkSize" env:"WIREFRAME_PIPE_CHUNK_SIZE"`
	Interval  time.Duration `yaml:"interval" env:"WIREFRAME_PIPE_INTERVAL"`
	Message   string        `yaml:"message" env:"WIREFRAME_PIPE_MESSAGE"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"WIREFRAME_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"WIREFRAME_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"WIREFRAME_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Decoder: DecoderConfig{
			Capacity: 1024 * 1024, // 1MB
		},
		Server: ServerConfig{
			ListenAddr:   ":9092",
			Framing:      FramingKafka,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Codec:        "none",
		},
		Pipe: PipeConfig{
			ChunkSize: 2,
			Interval:  time.Second,
			Message:   "Hello World!",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}
