package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"photo-tagger/internal/logging"
)

// DefaultConfigFile is the file name written by GenerateConfig.
const DefaultConfigFile = "photo-tagger.yaml"

var envFiles = []string{".env", ".env.local"}

// Settings is the on-disk and environment form of the configuration.
// Durations are kept as strings so generated files stay readable.
type Settings struct {
	MediaDir        string `mapstructure:"media_dir"        yaml:"media_dir"`
	CacheDir        string `mapstructure:"cache_dir"        yaml:"cache_dir"`
	ThumbnailDir    string `mapstructure:"thumbnail_dir"    yaml:"thumbnail_dir"`
	DatabaseDir     string `mapstructure:"database_dir"     yaml:"database_dir"`
	DatabasePath    string `mapstructure:"database_path"    yaml:"database_path"`
	Port            string `mapstructure:"port"             yaml:"port"`
	StabilityDelay  string `mapstructure:"stability_delay"  yaml:"stability_delay"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Thumbnail ThumbnailSettings `mapstructure:"thumbnail" yaml:"thumbnail"`
	Reconcile ReconcileSettings `mapstructure:"reconcile" yaml:"reconcile"`
	Dates     DatesSettings     `mapstructure:"dates"     yaml:"dates"`
	Metrics   MetricsSettings   `mapstructure:"metrics"   yaml:"metrics"`
	HTTP      HTTPSettings      `mapstructure:"http"      yaml:"http"`
	Log       logging.Config    `mapstructure:"log"       yaml:"log"`
}

// ThumbnailSettings bounds rendered thumbnails.
type ThumbnailSettings struct {
	MaxWidth  int `mapstructure:"max_width"  yaml:"max_width"`
	MaxHeight int `mapstructure:"max_height" yaml:"max_height"`
	Quality   int `mapstructure:"quality"    yaml:"quality"`
}

// ReconcileSettings controls reconciliation passes.
type ReconcileSettings struct {
	PruneMissing bool   `mapstructure:"prune_missing" yaml:"prune_missing"`
	Workers      int    `mapstructure:"workers"       yaml:"workers"`
	Interval     string `mapstructure:"interval"      yaml:"interval"`
}

// DatesSettings controls capture date extraction.
type DatesSettings struct {
	UseEXIF bool `mapstructure:"use_exif" yaml:"use_exif"`
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled         bool   `mapstructure:"enabled"          yaml:"enabled"`
	CollectInterval string `mapstructure:"collect_interval" yaml:"collect_interval"`
}

// HTTPSettings controls request logging.
type HTTPSettings struct {
	LogStaticFiles  bool `mapstructure:"log_static_files"  yaml:"log_static_files"`
	LogHealthChecks bool `mapstructure:"log_health_checks" yaml:"log_health_checks"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		MediaDir:        "/media",
		CacheDir:        "/cache",
		DatabaseDir:     "/database",
		Port:            "8080",
		StabilityDelay:  "1s",
		ShutdownTimeout: "10s",
		Thumbnail: ThumbnailSettings{
			MaxWidth:  200,
			MaxHeight: 200,
			Quality:   80,
		},
		Reconcile: ReconcileSettings{
			PruneMissing: false,
			Workers:      0,
			Interval:     "0s",
		},
		Dates: DatesSettings{UseEXIF: false},
		Metrics: MetricsSettings{
			Enabled:         true,
			CollectInterval: "1m",
		},
		HTTP: HTTPSettings{
			LogStaticFiles:  false,
			LogHealthChecks: true,
		},
		Log: logging.Config{
			// Empty keeps the level derived from DEBUG or LOG_LEVEL.
			Level: "",
			Rotation: logging.RotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
			},
		},
	}
}

// envBindings maps configuration keys to the environment variable names
// used by container deployments. PHOTO_TAGGER_<KEY> works for every key as well.
var envBindings = map[string]string{
	"media_dir":                "MEDIA_DIR",
	"cache_dir":                "CACHE_DIR",
	"thumbnail_dir":            "THUMBNAIL_DIR",
	"database_dir":             "DATABASE_DIR",
	"database_path":            "DATABASE_PATH",
	"port":                     "PORT",
	"stability_delay":          "STABILITY_DELAY",
	"shutdown_timeout":         "SHUTDOWN_TIMEOUT",
	"thumbnail.max_width":      "THUMBNAIL_MAX_WIDTH",
	"thumbnail.max_height":     "THUMBNAIL_MAX_HEIGHT",
	"thumbnail.quality":        "THUMBNAIL_QUALITY",
	"reconcile.prune_missing":  "PRUNE_MISSING",
	"reconcile.workers":        "RECONCILE_WORKERS",
	"reconcile.interval":       "RECONCILE_INTERVAL",
	"dates.use_exif":           "USE_EXIF",
	"metrics.enabled":          "METRICS_ENABLED",
	"metrics.collect_interval": "METRICS_COLLECT_INTERVAL",
	"http.log_static_files":    "LOG_STATIC_FILES",
	"http.log_health_checks":   "LOG_HEALTH_CHECKS",
	"log.level":                "LOG_LEVEL",
	"log.file":                 "LOG_FILE",
	"log.json":                 "LOG_JSON",
	"log.no_terminal":          "LOG_NO_TERMINAL",
	"log.rotation.max_size":    "LOG_MAX_SIZE",
	"log.rotation.max_backups": "LOG_MAX_BACKUPS",
	"log.rotation.max_age":     "LOG_MAX_AGE",
	"log.rotation.compress":    "LOG_COMPRESS",
}

// SetDefaults registers Defaults on v.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("media_dir", d.MediaDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("thumbnail_dir", d.ThumbnailDir)
	v.SetDefault("database_dir", d.DatabaseDir)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("port", d.Port)
	v.SetDefault("stability_delay", d.StabilityDelay)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("thumbnail.max_width", d.Thumbnail.MaxWidth)
	v.SetDefault("thumbnail.max_height", d.Thumbnail.MaxHeight)
	v.SetDefault("thumbnail.quality", d.Thumbnail.Quality)

	v.SetDefault("reconcile.prune_missing", d.Reconcile.PruneMissing)
	v.SetDefault("reconcile.workers", d.Reconcile.Workers)
	v.SetDefault("reconcile.interval", d.Reconcile.Interval)

	v.SetDefault("dates.use_exif", d.Dates.UseEXIF)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.collect_interval", d.Metrics.CollectInterval)

	v.SetDefault("http.log_static_files", d.HTTP.LogStaticFiles)
	v.SetDefault("http.log_health_checks", d.HTTP.LogHealthChecks)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.no_terminal", d.Log.NoTerminal)
	v.SetDefault("log.rotation.max_size", d.Log.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_backups", d.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age", d.Log.Rotation.MaxAge)
	v.SetDefault("log.rotation.compress", d.Log.Rotation.Compress)
}

// BindEnv binds every key to its environment variable and to the
// PHOTO_TAGGER_ prefixed form of the key.
func BindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env, "PHOTO_TAGGER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// InitConfig prepares v: defaults, .env files, environment bindings and the
// optional YAML file at path. Without a path, photo-tagger.yaml is looked up
// in the working directory, ./config and /etc/photo-tagger; a missing file
// is not an error.
func InitConfig(v *viper.Viper, path string) error {
	for _, envFile := range envFiles {
		// Missing .env files are ignored.
		_ = godotenv.Load(envFile)
	}

	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return err
	}

	if path != "" {
		v.SetConfigFile(path)
		for _, envFile := range envFiles {
			_ = godotenv.Load(filepath.Join(filepath.Dir(path), envFile))
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigFile, filepath.Ext(DefaultConfigFile)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/photo-tagger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// ReadSettings unmarshals v into Settings.
func ReadSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return s, nil
}

// GenerateConfig writes the default settings as YAML to dir. An existing
// file is only replaced when overwrite is set.
func GenerateConfig(dir string, overwrite bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := filepath.Join(dir, DefaultConfigFile)
	if _, err := os.Stat(filename); err == nil && !overwrite {
		return filename, fmt.Errorf("%s exists, use --overwrite to replace it", filename)
	}

	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return filename, nil
}

func parseDuration(name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logging.Warn("  Invalid %s %q, using default: %v", name, value, fallback)
		return fallback
	}
	return d
}
