package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	"photo-tagger/internal/logging"
	"photo-tagger/internal/memory"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds the resolved application configuration
type Config struct {
	MediaDir        string
	CacheDir        string
	DatabaseDir     string
	Port            string
	StabilityDelay  time.Duration
	ShutdownTimeout time.Duration

	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	ThumbnailQuality   int

	PruneMissing      bool
	ReconcileWorkers  int
	ReconcileInterval time.Duration
	UseEXIF           bool

	MetricsEnabled         bool
	MetricsCollectInterval time.Duration
	LogStaticFiles         bool
	LogHealthChecks        bool

	Log logging.Config

	// Derived paths
	DatabasePath string
	ThumbnailDir string

	// Feature flags based on directory availability
	ThumbnailsEnabled bool
}

// Resolve turns settings into a Config with absolute, derived paths and
// parsed durations. It does not touch the filesystem.
func Resolve(s Settings) (*Config, error) {
	d := Defaults()

	mediaDir, err := filepath.Abs(s.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	cacheDir, err := filepath.Abs(s.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	databaseDir, err := filepath.Abs(s.DatabaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}

	thumbnailDir := filepath.Join(cacheDir, "thumbnails")
	if s.ThumbnailDir != "" {
		if thumbnailDir, err = filepath.Abs(s.ThumbnailDir); err != nil {
			return nil, fmt.Errorf("failed to resolve thumbnail directory path: %w", err)
		}
	}

	databasePath := filepath.Join(databaseDir, "photo-tagger.db")
	if s.DatabasePath != "" {
		if databasePath, err = filepath.Abs(s.DatabasePath); err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		databaseDir = filepath.Dir(databasePath)
	}

	if rel, err := filepath.Rel(mediaDir, thumbnailDir); err == nil && !strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("thumbnail directory %s must not be inside the media directory", thumbnailDir)
	}

	cfg := &Config{
		MediaDir:        mediaDir,
		CacheDir:        cacheDir,
		DatabaseDir:     databaseDir,
		Port:            s.Port,
		StabilityDelay:  parseDuration("stability_delay", s.StabilityDelay, time.Second),
		ShutdownTimeout: parseDuration("shutdown_timeout", s.ShutdownTimeout, 10*time.Second),

		ThumbnailMaxWidth:  s.Thumbnail.MaxWidth,
		ThumbnailMaxHeight: s.Thumbnail.MaxHeight,
		ThumbnailQuality:   s.Thumbnail.Quality,

		PruneMissing:      s.Reconcile.PruneMissing,
		ReconcileWorkers:  s.Reconcile.Workers,
		ReconcileInterval: parseDuration("reconcile.interval", s.Reconcile.Interval, 0),
		UseEXIF:           s.Dates.UseEXIF,

		MetricsEnabled:         s.Metrics.Enabled,
		MetricsCollectInterval: parseDuration("metrics.collect_interval", s.Metrics.CollectInterval, time.Minute),
		LogStaticFiles:         s.HTTP.LogStaticFiles,
		LogHealthChecks:        s.HTTP.LogHealthChecks,

		Log: s.Log,

		DatabasePath: databasePath,
		ThumbnailDir: thumbnailDir,
	}

	if cfg.Port == "" {
		cfg.Port = d.Port
	}
	if cfg.StabilityDelay == 0 {
		cfg.StabilityDelay = time.Second
	}
	if cfg.ThumbnailMaxWidth <= 0 {
		cfg.ThumbnailMaxWidth = d.Thumbnail.MaxWidth
	}
	if cfg.ThumbnailMaxHeight <= 0 {
		cfg.ThumbnailMaxHeight = d.Thumbnail.MaxHeight
	}
	if cfg.MetricsCollectInterval == 0 {
		cfg.MetricsCollectInterval = time.Minute
	}

	return cfg, nil
}

// LoadConfig loads, logs and validates configuration from v, which must
// have been prepared with InitConfig.
func LoadConfig(v *viper.Viper) (*Config, error) {
	settings, err := ReadSettings(v)
	if err != nil {
		return nil, err
	}

	if err := logging.Configure(settings.Log); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if file := v.ConfigFileUsed(); file != "" {
		logging.Info("  Config file:         %s", file)
	}

	config, err := Resolve(settings)
	if err != nil {
		return nil, err
	}

	logging.Info("  MEDIA_DIR:           %s", config.MediaDir)
	logging.Info("  THUMBNAIL_DIR:       %s", config.ThumbnailDir)
	logging.Info("  DATABASE_PATH:       %s", config.DatabasePath)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  STABILITY_DELAY:     %v", config.StabilityDelay)
	logging.Info("  THUMBNAIL_SIZE:      %dx%d", config.ThumbnailMaxWidth, config.ThumbnailMaxHeight)
	logging.Info("  PRUNE_MISSING:       %v", config.PruneMissing)
	logging.Info("  RECONCILE_INTERVAL:  %v", config.ReconcileInterval)
	logging.Info("  USE_EXIF:            %v", config.UseEXIF)
	logging.Info("  LOG_STATIC_FILES:    %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	// The media directory is watched, so it must exist.
	if err := ensureDirectory(config.MediaDir, "media"); err != nil {
		return nil, fmt.Errorf("media directory error: %w", err)
	}
	logging.Info("  [OK] Media directory: %s", config.MediaDir)

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	config.ThumbnailsEnabled = setupOptionalDir(config.ThumbnailDir, "thumbnails")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    Thumbnails:  %s", enabledString(config.ThumbnailsEnabled))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	switch result.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT:      %s (set via environment)", memory.FormatBytes(result.GoMemLimit))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", memory.FormatBytes(result.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", memory.FormatBytes(result.GoMemLimit), result.Ratio*100)
	default:
		logging.Info("  GOMEMLIMIT:      not configured")
		logging.Debug("  Set MEMORY_LIMIT to bound heap growth during thumbnail rendering")
	}
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, images int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
	logging.Info("  Indexed images:  %d", images)
}

// LogThumbnailInit logs thumbnail renderer initialization
func LogThumbnailInit(enabled bool, maxWidth, maxHeight int) {
	if !enabled {
		logging.Warn("  Thumbnails disabled (thumbnail directory not writable)")
		logging.Warn("  Files are still indexed; thumbnails are retried on the next reconciliation")
		return
	}
	logging.Info("  Thumbnail bounds: %dx%d", maxWidth, maxHeight)
}

// LogIngestInit logs ingestion coordinator initialization
func LogIngestInit(cfg *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INGESTION INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Stability delay:    %v", cfg.StabilityDelay)
	if cfg.ReconcileInterval > 0 {
		logging.Info("  Reconcile interval: %v", cfg.ReconcileInterval)
	} else {
		logging.Info("  Reconcile interval: startup only")
	}
	logging.Info("  Prune missing:      %v", cfg.PruneMissing)
	logging.Info("  Starting watcher and initial reconciliation...")
}

// LogIngestStarted logs successful coordinator start
func LogIngestStarted() {
	logging.Info("  [OK] Ingestion started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Static file servers have no methods
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
       __          __           __
  ___ / /  ___  __/ /____  ____/ /____ ____ ____ ____ ____
 / _ \/ _ \/ _ \/ _/ _ \/___/ __/ _ '/ _ '/ _ '/ -_) __/
/ .__/_//_/\___/\__/\___/    \__/\_,_/\_, /\_, /\__/_/
/_/                                  /___//___/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if name == "media" && logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			fileCount := 0
			dirCount := 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
