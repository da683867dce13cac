package cfg

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "HEAPDB"

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

type Environment string

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}

type Config struct {
	Environment Environment `default:"dev"`

	DataDir         string `split_words:"true" default:"./data"`
	PageSize        int    `split_words:"true" default:"4096"`
	BufferPoolPages int    `split_words:"true" default:"50"`
	EvictionPolicy  string `split_words:"true" default:"random"`
}

// Load reads the .env file at path (or ./.env when path is empty and the
// file exists) and then the HEAPDB_* environment variables.
func Load(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return fmt.Errorf("environment validation: %w", err)
	}

	if c.DataDir == "" {
		return errors.New("data dir must not be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.BufferPoolPages <= 0 {
		return fmt.Errorf("buffer pool must hold at least one page, got %d", c.BufferPoolPages)
	}
	if c.EvictionPolicy != "random" && c.EvictionPolicy != "lru" {
		return fmt.Errorf("eviction policy must be either random or lru, got %q", c.EvictionPolicy)
	}

	return nil
}
