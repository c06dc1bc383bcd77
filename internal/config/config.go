package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Job     JobConfig     `yaml:"job" mapstructure:"job"`
	Rules   RulesConfig   `yaml:"rules" mapstructure:"rules"`
	Detect  DetectConfig  `yaml:"detect" mapstructure:"detect"`
	Tracker TrackerConfig `yaml:"tracker" mapstructure:"tracker"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig configures the record store connection. DatabaseURL wins over
// the individual host/user/password fields when both are set.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	Database    string `yaml:"database" mapstructure:"database"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// DSN returns the connection string for the store.
func (s StoreConfig) DSN() string {
	if s.DatabaseURL != "" {
		return s.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + s.Database,
	}
	if s.User != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.User, s.Password)
		} else {
			u.User = url.User(s.User)
		}
	}
	return u.String()
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// JobConfig configures round sequencing and batch sizes.
type JobConfig struct {
	StartRound       int `yaml:"start_round" mapstructure:"start_round"`
	EndRound         int `yaml:"end_round" mapstructure:"end_round"`
	RowBatchSize     int `yaml:"row_batch_size" mapstructure:"row_batch_size"`
	IssueBatchSize   int `yaml:"issue_batch_size" mapstructure:"issue_batch_size"`
	ActionBatchSize  int `yaml:"action_batch_size" mapstructure:"action_batch_size"`
	PageSize         int `yaml:"page_size" mapstructure:"page_size"`
	BracketThreshold int `yaml:"bracket_threshold" mapstructure:"bracket_threshold"`
}

// RulesConfig holds the year spans used to tighten birth brackets.
type RulesConfig struct {
	UsualLongestLife       int `yaml:"usual_longest_life" mapstructure:"usual_longest_life"`
	MinMarriageAge         int `yaml:"min_marriage_age" mapstructure:"min_marriage_age"`
	MaxMarriageAge         int `yaml:"max_marriage_age" mapstructure:"max_marriage_age"`
	UsualYoungestMother    int `yaml:"usual_youngest_mother" mapstructure:"usual_youngest_mother"`
	UsualOldestMother      int `yaml:"usual_oldest_mother" mapstructure:"usual_oldest_mother"`
	UsualYoungestFather    int `yaml:"usual_youngest_father" mapstructure:"usual_youngest_father"`
	UsualOldestFather      int `yaml:"usual_oldest_father" mapstructure:"usual_oldest_father"`
	MaxSpouseGap           int `yaml:"max_spouse_gap" mapstructure:"max_spouse_gap"`
	MaxAfterParentMarriage int `yaml:"max_after_parent_marriage" mapstructure:"max_after_parent_marriage"`
	MaxSiblingGap          int `yaml:"max_sibling_gap" mapstructure:"max_sibling_gap"`
}

// DetectConfig configures the local issue detector and record flags.
type DetectConfig struct {
	AncientYear   int      `yaml:"ancient_year" mapstructure:"ancient_year"`
	FamousMarkers []string `yaml:"famous_markers" mapstructure:"famous_markers"`
}

// TrackerConfig configures verification and deferral scanning.
// TemplatesFile, when set, replaces the built-in anomaly template table.
type TrackerConfig struct {
	TemplatesFile    string `yaml:"templates_file" mapstructure:"templates_file"`
	DeferralTemplate string `yaml:"deferral_template" mapstructure:"deferral_template"`
}

// MetricsConfig configures the end-of-run metrics dump.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.database", "wikidb")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("job.start_round", 1)
	v.SetDefault("job.end_round", 4)
	v.SetDefault("job.row_batch_size", 500)
	v.SetDefault("job.issue_batch_size", 1000)
	v.SetDefault("job.action_batch_size", 1000)
	v.SetDefault("job.page_size", 500)
	v.SetDefault("job.bracket_threshold", 10)
	v.SetDefault("rules.usual_longest_life", 110)
	v.SetDefault("rules.min_marriage_age", 12)
	v.SetDefault("rules.max_marriage_age", 80)
	v.SetDefault("rules.usual_youngest_mother", 15)
	v.SetDefault("rules.usual_oldest_mother", 50)
	v.SetDefault("rules.usual_youngest_father", 15)
	v.SetDefault("rules.usual_oldest_father", 80)
	v.SetDefault("rules.max_spouse_gap", 15)
	v.SetDefault("rules.max_after_parent_marriage", 35)
	v.SetDefault("rules.max_sibling_gap", 30)
	v.SetDefault("detect.ancient_year", 1000)
	v.SetDefault("detect.famous_markers", []string{"{{wikipedia-notice", "{{famous"})
	v.SetDefault("tracker.deferral_template", "DeferredDQ")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the job settings for values the run cannot work with.
func (c *Config) Validate() error {
	j := c.Job
	if j.StartRound < 1 {
		return eris.Errorf("config: start round must be >= 1, got %d", j.StartRound)
	}
	if j.EndRound < j.StartRound {
		return eris.Errorf("config: end round %d is before start round %d", j.EndRound, j.StartRound)
	}
	if j.RowBatchSize <= 0 || j.IssueBatchSize <= 0 || j.ActionBatchSize <= 0 || j.PageSize <= 0 {
		return eris.New("config: batch and page sizes must be positive")
	}
	if c.Rules.UsualLongestLife <= 0 {
		return eris.New("config: rules.usual_longest_life must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
