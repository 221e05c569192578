package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
)

// Global configuration structure.
type Global struct {
	// Pipeline rules
	DateFormats        []string  `mapstructure:"date_formats" yaml:"date_formats"`
	SerialDates        bool      `mapstructure:"serial_dates" yaml:"serial_dates"`
	DigitalChannels    []string  `mapstructure:"digital_channels" yaml:"digital_channels"`
	CompliantOutcomes  []string  `mapstructure:"compliant_outcomes" yaml:"compliant_outcomes"`
	SlabBounds         []float64 `mapstructure:"slab_bounds" yaml:"slab_bounds"`
	AvgPer             string    `mapstructure:"avg_per" yaml:"avg_per"`
	RejectSamples      int       `mapstructure:"reject_samples" yaml:"reject_samples"`
	DecimalSeparator   string    `mapstructure:"decimal_separator" yaml:"decimal_separator"`
	ThousandsSeparator string    `mapstructure:"thousands_separator" yaml:"thousands_separator"`

	// Report defaults
	DefaultGroupBy []string `mapstructure:"default_group_by" yaml:"default_group_by"`
	DefaultPeriod  string   `mapstructure:"default_period" yaml:"default_period"`
	TopN           int      `mapstructure:"top_n" yaml:"top_n"`
	XLSXPivot      bool     `mapstructure:"xlsx_pivot" yaml:"xlsx_pivot"`
	XLSXChart      bool     `mapstructure:"xlsx_chart" yaml:"xlsx_chart"`
	OutputDir      string   `mapstructure:"output_dir" yaml:"output_dir"`

	// HTTP server
	ServeAddr        string  `mapstructure:"serve_addr" yaml:"serve_addr"`
	ServeMaxUploadMB int     `mapstructure:"serve_max_upload_mb" yaml:"serve_max_upload_mb"`
	ServeRatePerSec  float64 `mapstructure:"serve_rate_per_sec" yaml:"serve_rate_per_sec"`
	ServeBurst       int     `mapstructure:"serve_burst" yaml:"serve_burst"`
}

// configDir is ~/.callreport.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".callreport"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.callreport/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CALLREPORT")
	v.AutomaticEnv()

	// Defaults mirror pipeline.DefaultOptions
	def := pipeline.DefaultOptions()
	v.SetDefault("date_formats", def.DateFormats)
	v.SetDefault("serial_dates", def.SerialDates)
	v.SetDefault("digital_channels", def.DigitalChannels)
	v.SetDefault("compliant_outcomes", def.CompliantOutcomes)
	v.SetDefault("slab_bounds", def.SlabBounds)
	v.SetDefault("avg_per", string(def.AvgPer))
	v.SetDefault("reject_samples", def.RejectSamples)
	v.SetDefault("decimal_separator", "")
	v.SetDefault("thousands_separator", "")
	v.SetDefault("default_group_by", []string{"representative"})
	v.SetDefault("default_period", "month")
	v.SetDefault("top_n", 10)
	v.SetDefault("xlsx_pivot", true)
	v.SetDefault("xlsx_chart", true)
	v.SetDefault("output_dir", "reports")
	// Server defaults
	v.SetDefault("serve_addr", "127.0.0.1:8080")
	v.SetDefault("serve_max_upload_mb", 20)
	v.SetDefault("serve_rate_per_sec", 5.0)
	v.SetDefault("serve_burst", 10)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// PipelineOptions converts the pipeline rules into pipeline.Options and
// validates them.
func (c *Global) PipelineOptions() (pipeline.Options, error) {
	opt := pipeline.Options{
		DateFormats:       c.DateFormats,
		SerialDates:       c.SerialDates,
		DigitalChannels:   c.DigitalChannels,
		CompliantOutcomes: c.CompliantOutcomes,
		SlabBounds:        c.SlabBounds,
		AvgPer:            pipeline.Field(strings.ToLower(strings.TrimSpace(c.AvgPer))),
		RejectSamples:     c.RejectSamples,
	}
	var err error
	if opt.DecimalSeparator, err = separator("decimal_separator", c.DecimalSeparator); err != nil {
		return opt, err
	}
	if opt.ThousandsSeparator, err = separator("thousands_separator", c.ThousandsSeparator); err != nil {
		return opt, err
	}
	if err := opt.Check(); err != nil {
		return opt, fmt.Errorf("invalid config: %w", err)
	}
	return opt, nil
}

func separator(key, s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "space":
		return ' ', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid %s %q: want a single character", key, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"date_formats", "serial_dates", "digital_channels", "compliant_outcomes", "slab_bounds",
	"avg_per", "reject_samples", "decimal_separator", "thousands_separator",
	"default_group_by", "default_period", "top_n", "xlsx_pivot", "xlsx_chart", "output_dir",
	"serve_addr", "serve_max_upload_mb", "serve_rate_per_sec", "serve_burst",
}

// Set assigns a value from its command-line text form. List values are
// comma-separated.
func (c *Global) Set(key, val string) error {
	switch key {
	case "date_formats":
		c.DateFormats = splitList(val)
	case "serial_dates":
		return setBool(&c.SerialDates, key, val)
	case "digital_channels":
		c.DigitalChannels = splitList(val)
	case "compliant_outcomes":
		c.CompliantOutcomes = splitList(val)
	case "slab_bounds":
		var bounds []float64
		for _, s := range splitList(val) {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid float in slab_bounds: %v", s)
			}
			bounds = append(bounds, f)
		}
		if _, err := pipeline.Bands(bounds); err != nil {
			return err
		}
		c.SlabBounds = bounds
	case "avg_per":
		o := pipeline.Options{AvgPer: pipeline.Field(strings.ToLower(val)), SlabBounds: []float64{100}}
		if err := o.Check(); err != nil {
			return err
		}
		c.AvgPer = strings.ToLower(val)
	case "reject_samples":
		return setInt(&c.RejectSamples, key, val)
	case "decimal_separator":
		if _, err := separator(key, val); err != nil {
			return err
		}
		c.DecimalSeparator = val
	case "thousands_separator":
		if _, err := separator(key, val); err != nil {
			return err
		}
		c.ThousandsSeparator = val
	case "default_group_by":
		if _, _, err := pipeline.ParseGroupKeys([]string{val}); err != nil {
			return err
		}
		c.DefaultGroupBy = splitList(val)
	case "default_period":
		p, err := pipeline.ParsePeriod(val)
		if err != nil {
			return err
		}
		c.DefaultPeriod = string(p)
	case "top_n":
		return setInt(&c.TopN, key, val)
	case "xlsx_pivot":
		return setBool(&c.XLSXPivot, key, val)
	case "xlsx_chart":
		return setBool(&c.XLSXChart, key, val)
	case "output_dir":
		c.OutputDir = val
	case "serve_addr":
		c.ServeAddr = val
	case "serve_max_upload_mb":
		return setInt(&c.ServeMaxUploadMB, key, val)
	case "serve_rate_per_sec":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for serve_rate_per_sec: %v", val)
		}
		c.ServeRatePerSec = f
	case "serve_burst":
		return setInt(&c.ServeBurst, key, val)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// Values renders every key for display, sorted as in Keys.
func (c *Global) Values() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	bounds := make([]string, len(c.SlabBounds))
	for i, b := range c.SlabBounds {
		bounds[i] = f(b)
	}
	return map[string]string{
		"date_formats":        strings.Join(c.DateFormats, ", "),
		"serial_dates":        strconv.FormatBool(c.SerialDates),
		"digital_channels":    strings.Join(c.DigitalChannels, ", "),
		"compliant_outcomes":  strings.Join(c.CompliantOutcomes, ", "),
		"slab_bounds":         strings.Join(bounds, ", "),
		"avg_per":             c.AvgPer,
		"reject_samples":      strconv.Itoa(c.RejectSamples),
		"decimal_separator":   c.DecimalSeparator,
		"thousands_separator": c.ThousandsSeparator,
		"default_group_by":    strings.Join(c.DefaultGroupBy, ", "),
		"default_period":      c.DefaultPeriod,
		"top_n":               strconv.Itoa(c.TopN),
		"xlsx_pivot":          strconv.FormatBool(c.XLSXPivot),
		"xlsx_chart":          strconv.FormatBool(c.XLSXChart),
		"output_dir":          c.OutputDir,
		"serve_addr":          c.ServeAddr,
		"serve_max_upload_mb": strconv.Itoa(c.ServeMaxUploadMB),
		"serve_rate_per_sec":  f(c.ServeRatePerSec),
		"serve_burst":         strconv.Itoa(c.ServeBurst),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setInt(dst *int, key, val string) error {
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return fmt.Errorf("invalid int for %s: %v", key, val)
	}
	*dst = i
	return nil
}

func setBool(dst *bool, key, val string) error {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid bool for %s: %v", key, val)
	}
	*dst = b
	return nil
}
