// CLAUDE:SUMMARY YAML configuration for the SGX downloader: portal, pivot, files, exclusions, paths, logging and the days section; load, default, write, validate.
package sgx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sgxhist/sgx/internal/calendar"
	"github.com/hazyhaar/sgxhist/sgx/internal/exclusion"
	"github.com/hazyhaar/sgxhist/sgx/internal/portal"
	"github.com/hazyhaar/sgxhist/sgx/internal/resolve"
)

// DefaultExcluded lists the identifiers the portal is known to have skipped.
const DefaultExcluded = "2725-2754,2771,2772,2873,3025,3257,3590,3591,3710,3711,3712,3848,3849,3874,4239,4766"

// Config is the downloader configuration, as stored in YAML.
type Config struct {
	Portal PortalConfig `yaml:"portal"`
	Pivot  PivotConfig  `yaml:"pivot"`
	// DayFormat names day directories and journal rows: a Go layout or a
	// strftime format ("%Y%m%d").
	DayFormat string `yaml:"day_format"`
	Output    string `yaml:"output"`
	Journal   string `yaml:"journal"`
	// Ledger is the SQLite path; empty disables it.
	Ledger string `yaml:"ledger"`

	// DownloadFiles are keys of FileNames, fetched in this order.
	DownloadFiles []string          `yaml:"download_files"`
	KeyFile       string            `yaml:"key_file"`
	FileNames     map[string]string `yaml:"file_names"`
	MaxRetry      int               `yaml:"max_retry"`

	// Excluded is the exclusion list: singletons and inclusive ranges.
	Excluded            string `yaml:"excluded"`
	SkipExcludedInRange bool   `yaml:"skip_excluded_in_range"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Quiet    bool   `yaml:"quiet"`

	Days DaysConfig `yaml:"days"`
}

// PortalConfig configures HTTP access to the portal.
type PortalConfig struct {
	Link         string        `yaml:"link"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	RateInterval time.Duration `yaml:"rate_interval"`
}

// PivotConfig is the known (date, identifier) pair.
type PivotConfig struct {
	Date       string `yaml:"date"` // YYYYMMDD
	Identifier int    `yaml:"identifier"`
}

// DaysConfig is the work RunConfigured performs. "off" or empty disables
// an entry.
type DaysConfig struct {
	Day   string `yaml:"day"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Past  int    `yaml:"past"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Portal: PortalConfig{
			Link:         portal.DefaultLinkPattern,
			UserAgent:    "sgxhist/1.0",
			Timeout:      10 * time.Minute,
			RateInterval: 200 * time.Millisecond,
		},
		Pivot: PivotConfig{
			Date:       resolve.DefaultPivot.Date.Format("20060102"),
			Identifier: resolve.DefaultPivot.Identifier,
		},
		DayFormat:     calendar.DefaultLayout,
		Output:        "./downloadedData",
		Journal:       "sgx-failed.txt",
		Ledger:        "sgxhist.db",
		DownloadFiles: []string{"td", "tds", "tc", "tcs"},
		KeyFile:       "tc",
		FileNames: map[string]string{
			"td":  "WEBPXTICK_DT.zip",
			"tds": "TickData_structure.dat",
			"tc":  "TC.txt",
			"tcs": "TC_structure.dat",
		},
		MaxRetry: 3,
		Excluded: DefaultExcluded,
		LogLevel: "info",
		LogFile:  "sgx-downloader.log",
		Days:     DaysConfig{Day: "yesterday", Start: "yesterday", End: "yesterday"},
	}
}

// applyDefaults fills fields a partial file left empty. Ledger and
// Excluded stay as given: empty is meaningful for both.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Portal.Link == "" {
		c.Portal.Link = d.Portal.Link
	}
	if c.Portal.UserAgent == "" {
		c.Portal.UserAgent = d.Portal.UserAgent
	}
	if c.Portal.Timeout <= 0 {
		c.Portal.Timeout = d.Portal.Timeout
	}
	if c.Pivot.Date == "" {
		c.Pivot = d.Pivot
	}
	if c.DayFormat == "" {
		c.DayFormat = d.DayFormat
	}
	if c.Output == "" {
		c.Output = d.Output
	}
	if c.Journal == "" {
		c.Journal = d.Journal
	}
	if len(c.FileNames) == 0 {
		c.FileNames = d.FileNames
	}
	if len(c.DownloadFiles) == 0 {
		c.DownloadFiles = d.DownloadFiles
	}
	if c.KeyFile == "" {
		c.KeyFile = d.KeyFile
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks the configuration and returns every problem found,
// joined, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if strings.Count(c.Portal.Link, "%") != 2 || !strings.Contains(c.Portal.Link, "%d") || !strings.Contains(c.Portal.Link, "%s") {
		errs = append(errs, fmt.Errorf("portal.link %q must hold one %%d then one %%s", c.Portal.Link))
	} else if strings.Index(c.Portal.Link, "%d") > strings.Index(c.Portal.Link, "%s") {
		errs = append(errs, fmt.Errorf("portal.link %q: %%d must come before %%s", c.Portal.Link))
	}
	if _, err := c.pivot(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.labeler(); err != nil {
		errs = append(errs, err)
	}
	if _, err := exclusion.Parse(c.Excluded); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Files(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := c.FileNames[c.KeyFile]; !ok {
		errs = append(errs, fmt.Errorf("key_file %q is not a file_names key", c.KeyFile))
	}
	if c.MaxRetry < 0 {
		errs = append(errs, fmt.Errorf("max_retry %d must be >= 0", c.MaxRetry))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Files returns the portal file names to download, in order.
func (c *Config) Files() ([]string, error) {
	out := make([]string, 0, len(c.DownloadFiles))
	for _, key := range c.DownloadFiles {
		name, ok := c.FileNames[key]
		if !ok {
			return nil, fmt.Errorf("download_files: %q is not a file_names key", key)
		}
		out = append(out, name)
	}
	return out, nil
}

func (c *Config) pivot() (resolve.Pivot, error) {
	d, err := time.ParseInLocation("20060102", c.Pivot.Date, time.UTC)
	if err != nil {
		return resolve.Pivot{}, fmt.Errorf("pivot.date %q: want YYYYMMDD", c.Pivot.Date)
	}
	if c.Pivot.Identifier <= 0 {
		return resolve.Pivot{}, fmt.Errorf("pivot.identifier %d must be > 0", c.Pivot.Identifier)
	}
	return resolve.Pivot{Date: d, Identifier: c.Pivot.Identifier}, nil
}

func (c *Config) labeler() (calendar.Labeler, error) {
	layout, err := calendar.LayoutOf(c.DayFormat)
	if err != nil {
		return calendar.Labeler{}, err
	}
	l := calendar.Labeler{Layout: layout}
	return l, l.Validate()
}

// ParseLevel maps debug, info, warn/warning and error (any case) to a
// slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	switch strings.ToLower(s) {
	case "warning":
		return slog.LevelWarn, nil
	case "critical":
		return slog.LevelError, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return l, nil
}

// DefaultConfigPath is sgxhist.yaml under %APPDATA% on Windows and
// ~/.config elsewhere.
func DefaultConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, "sgxhist.yaml"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sgx: config path: %w", err)
	}
	return filepath.Join(home, ".config", "sgxhist.yaml"), nil
}

// LoadConfigFile reads a YAML file over DefaultConfig.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sgx: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// WriteConfigFile writes cfg as YAML, creating parent directories.
func WriteConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("sgx: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sgx: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sgx: write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sgx: rename config: %w", err)
	}
	return nil
}

// EnsureConfigFile loads path, or writes DefaultConfig there when it does
// not exist yet.
func EnsureConfigFile(path string) (cfg *Config, created bool, err error) {
	cfg, err = LoadConfigFile(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	cfg = DefaultConfig()
	if err := WriteConfigFile(path, cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}
