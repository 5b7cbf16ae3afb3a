package forge

import (
	"bytes"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dxforge/forge/pkg/chunk"
)

// Config is the per-repository configuration stored as TOML in
// .forge/config.toml.
//
// Parsing is strict: unknown fields and type mismatches fail with
// ErrConfigParse, and there is no "merge with defaults" fallback. A
// repository whose config cannot be read exactly as written must not
// be operated on with guessed parameters, because chunking parameters
// affect every subsequent ingestion.
type Config struct {
	// ChunkMin, ChunkAvg and ChunkMax bound content-defined chunk
	// sizes in bytes.
	ChunkMin uint32 `toml:"chunk_min"`
	ChunkAvg uint32 `toml:"chunk_avg"`
	ChunkMax uint32 `toml:"chunk_max"`

	// CompressionLevel is the zstd level for stored chunks.
	CompressionLevel int `toml:"compression_level"`

	// DictSize is the target size in bytes for trained compression
	// dictionaries under .forge/dictionaries.
	DictSize int `toml:"dict_size"`

	// RemoteURL optionally names the default mirror remote.
	RemoteURL string `toml:"remote_url,omitempty"`
}

// DefaultConfig returns the configuration written by Init.
func DefaultConfig() Config {
	return Config{
		ChunkMin:         65536,
		ChunkAvg:         262144,
		ChunkMax:         1048576,
		CompressionLevel: 8,
		DictSize:         112640,
	}
}

// ChunkParams returns the chunker parameters for this config.
func (c Config) ChunkParams() chunk.Params {
	return chunk.Params{Min: c.ChunkMin, Avg: c.ChunkAvg, Max: c.ChunkMax}
}

// Validate checks value-level invariants that strict decoding cannot.
func (c Config) Validate() error {
	if err := c.ChunkParams().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("%w: compression_level %d out of range [1,22]", ErrConfigParse, c.CompressionLevel)
	}
	if c.DictSize < 0 {
		return fmt.Errorf("%w: dict_size must not be negative", ErrConfigParse)
	}
	return nil
}

// readConfig parses a config file strictly. Any unknown field, type
// mismatch or invalid value is fatal.
func readConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	decoder := toml.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// writeConfig serializes a config as TOML.
func writeConfig(path string, cfg Config) error {
	raw, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
