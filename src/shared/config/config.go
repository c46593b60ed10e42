package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/stemtools/stemsplit/src/shared/config/envvar"
	"github.com/stemtools/stemsplit/src/shared/lib/cerr"
)

type Config struct {
	// OutputDir is the base directory that run directories are created under.
	OutputDir string `toml:"output_dir"`
	// WorkingDir holds download staging files, the separation lock and the
	// run registry.
	WorkingDir string `toml:"working_dir"`

	Demucs   Demucs   `toml:"demucs"`
	Download Download `toml:"download"`
	Registry Registry `toml:"registry"`
	Queue    Queue    `toml:"queue"`
	Upload   Upload   `toml:"upload"`
}

type Demucs struct {
	// BinPath is resolved from PATH when empty.
	BinPath string `toml:"bin_path"`
	Model   string `toml:"model"`
	MP3     bool   `toml:"mp3"`
}

type Download struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	Retries        int `toml:"retries"`
}

type Registry struct {
	// Path defaults to <working_dir>/runs.db when empty.
	Path string `toml:"path"`
}

type Queue struct {
	URL  string `toml:"url"`
	Name string `toml:"name"`
}

type Upload struct {
	Enabled     bool   `toml:"enabled"`
	StorageHost string `toml:"storage_host"`
	Bucket      string `toml:"bucket"`
	// SecretKey is never read from the config file, only from the env.
	SecretKey string `toml:"-"`
}

func Default() Config {
	return Config{
		OutputDir:  "stem_outputs",
		WorkingDir: defaultWorkingDir(),
		Demucs: Demucs{
			Model: "htdemucs_6s",
			MP3:   true,
		},
		Download: Download{
			TimeoutSeconds: 120,
			Retries:        2,
		},
		Queue: Queue{
			Name: "stemsplit-jobs",
		},
		Upload: Upload{
			StorageHost: "https://storage.googleapis.com",
		},
	}
}

// Load reads the TOML config at path, falling back to defaults when path is
// empty or absent, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return Config{}, cerr.Field("config_path", path).
				Wrap(err).Error("Failed to read config file")
		}

		if err := toml.Unmarshal(contents, &cfg); err != nil {
			return Config{}, cerr.Field("config_path", path).
				Wrap(err).Error("Failed to parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(cfg.WorkingDir, "runs.db")
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Demucs.BinPath = envvar.GetOrDefault(envvar.DEMUCS_BIN_PATH, c.Demucs.BinPath)
	c.Queue.URL = envvar.GetOrDefault(envvar.RABBITMQ_URL, c.Queue.URL)
	c.Queue.Name = envvar.GetOrDefault(envvar.RABBITMQ_QUEUE_NAME, c.Queue.Name)
	c.Upload.Bucket = envvar.GetOrDefault(envvar.UPLOAD_BUCKET_NAME, c.Upload.Bucket)
	c.Upload.SecretKey = envvar.GetOrDefault(envvar.GOOGLE_CLOUD_KEY, "")
}

func (c Config) EnsureDirectories() error {
	for _, dir := range []string{c.OutputDir, c.WorkingDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return cerr.Field("dir", dir).Wrap(err).Error("Failed to create directory")
		}
	}

	return nil
}

func defaultWorkingDir() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return ".stemsplit"
	}

	return filepath.Join(cacheDir, "stemsplit")
}
