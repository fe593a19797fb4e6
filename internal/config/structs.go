//nolint:lll
package config

// Config represents the complete configuration for wordscan. It includes
// settings for all commands (scan, extract, serve) and supports loading from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Recognition engine configuration
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`

	// Candidate validation configuration
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation" json:"validation"`

	// Scan orchestration
	Scan ScanConfig `mapstructure:"scan" yaml:"scan" json:"scan"`

	// Frame region of interest
	Frames FramesConfig `mapstructure:"frames" yaml:"frames" json:"frames"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// RecognitionConfig selects and tunes the text recognition engine.
type RecognitionConfig struct {
	Engine      string `mapstructure:"engine" yaml:"engine" json:"engine"`
	Language    string `mapstructure:"language" yaml:"language" json:"language"`
	TessdataDir string `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
	TessdataURL string `mapstructure:"tessdata_url" yaml:"tessdata_url" json:"tessdata_url"`
	RemoteURL   string `mapstructure:"remote_url" yaml:"remote_url" json:"remote_url"`
	ThrottleMS  int    `mapstructure:"throttle_ms" yaml:"throttle_ms" json:"throttle_ms"`
	TimeoutSec  int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	// Workers bounds concurrent recognitions across all sessions; 0 means unbounded.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
	// Bypass returns every recognized line instead of address candidates.
	Bypass bool `mapstructure:"bypass" yaml:"bypass" json:"bypass"`
}

// ValidationConfig configures the autosuggest client.
type ValidationConfig struct {
	BaseURL         string   `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey          string   `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Language        string   `mapstructure:"language" yaml:"language" json:"language"`
	ClipToCountries []string `mapstructure:"clip_to_countries" yaml:"clip_to_countries" json:"clip_to_countries"`
	FocusLat        *float64 `mapstructure:"focus_lat" yaml:"focus_lat" json:"focus_lat,omitempty"`
	FocusLng        *float64 `mapstructure:"focus_lng" yaml:"focus_lng" json:"focus_lng,omitempty"`
	NResults        int      `mapstructure:"n_results" yaml:"n_results" json:"n_results"`
	WithCoordinates bool     `mapstructure:"with_coordinates" yaml:"with_coordinates" json:"with_coordinates"`
	TimeoutSec      int      `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	CacheSize       int      `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
	MaxConcurrency  int      `mapstructure:"max_concurrency" yaml:"max_concurrency" json:"max_concurrency"`
	// Dictionary is a YAML address book; when set, validation runs offline.
	Dictionary string `mapstructure:"dictionary" yaml:"dictionary" json:"dictionary"`
}

// ScanConfig contains orchestrator settings.
type ScanConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// FramesConfig describes the crop region in preview coordinates.
type FramesConfig struct {
	CropX          int `mapstructure:"crop_x" yaml:"crop_x" json:"crop_x"`
	CropY          int `mapstructure:"crop_y" yaml:"crop_y" json:"crop_y"`
	CropWidth      int `mapstructure:"crop_width" yaml:"crop_width" json:"crop_width"`
	CropHeight     int `mapstructure:"crop_height" yaml:"crop_height" json:"crop_height"`
	ViewportWidth  int `mapstructure:"viewport_width" yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int `mapstructure:"viewport_height" yaml:"viewport_height" json:"viewport_height"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// Sessions is the number of pooled scanners serving uploads.
	Sessions  int             `mapstructure:"sessions" yaml:"sessions" json:"sessions"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig limits scan requests per client address. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}
