package models

import (
	"path/filepath"
	"time"
)

// ProjectConfig is the top-level configuration for enzflow
type ProjectConfig struct {
	DataDir    string           `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database" json:"database"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Tools      ToolsConfig      `mapstructure:"tools" yaml:"tools" json:"tools"`
	References ReferencesConfig `mapstructure:"references" yaml:"references" json:"references"`
	Ramdisk    RamdiskConfig    `mapstructure:"ramdisk" yaml:"ramdisk" json:"ramdisk"`
	Queue      QueueConfig      `mapstructure:"queue" yaml:"queue" json:"queue"`
	Scoring    ScoringConfig    `mapstructure:"scoring" yaml:"scoring" json:"scoring"`
	Progress   ProgressConfig   `mapstructure:"progress" yaml:"progress" json:"progress"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// DatabaseConfig locates the SQLite job store
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"` // Empty means <data_dir>/enzflow.db
}

// ServerConfig controls the HTTP surface
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	ReapInterval    time.Duration `mapstructure:"reap_interval" yaml:"reap_interval" json:"reap_interval"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
}

// ToolsConfig names the external binaries and how they are invoked
type ToolsConfig struct {
	CPUCores       int       `mapstructure:"cpu_cores" yaml:"cpu_cores" json:"cpu_cores"`
	PathStyle      PathStyle `mapstructure:"path_style" yaml:"path_style" json:"path_style"`
	Launcher       []string  `mapstructure:"launcher" yaml:"launcher" json:"launcher"` // argv prefix, e.g. ["wsl", "--"]
	HMMSearch      string    `mapstructure:"hmmsearch" yaml:"hmmsearch" json:"hmmsearch"`
	HMMFetch       string    `mapstructure:"hmmfetch" yaml:"hmmfetch" json:"hmmfetch"`
	HMMPress       string    `mapstructure:"hmmpress" yaml:"hmmpress" json:"hmmpress"`
	Diamond        string    `mapstructure:"diamond" yaml:"diamond" json:"diamond"`
	Emapper        string    `mapstructure:"emapper" yaml:"emapper" json:"emapper"`
	DownloadEggnog string    `mapstructure:"download_eggnog" yaml:"download_eggnog" json:"download_eggnog"`
	Gunzip         string    `mapstructure:"gunzip" yaml:"gunzip" json:"gunzip"`
}

// PathStyle selects how host paths are rewritten for the tool environment
type PathStyle string

const (
	PathStyleNative PathStyle = "native"
	PathStyleWSL    PathStyle = "wsl"
)

// ReferencesConfig locates the reference corpora
type ReferencesConfig struct {
	EggnogDir      string `mapstructure:"eggnog_dir" yaml:"eggnog_dir" json:"eggnog_dir"`
	KofamDir       string `mapstructure:"kofam_dir" yaml:"kofam_dir" json:"kofam_dir"`
	KOList         string `mapstructure:"ko_list" yaml:"ko_list" json:"ko_list"`
	KeggCorpus     string `mapstructure:"kegg_corpus" yaml:"kegg_corpus" json:"kegg_corpus"`
	EggnogProteins string `mapstructure:"eggnog_proteins" yaml:"eggnog_proteins" json:"eggnog_proteins"`
	Profiles       string `mapstructure:"profiles" yaml:"profiles" json:"profiles"` // Full profiles.hmm
}

// RamdiskConfig describes an operator-mounted tmpfs for the tier-1 index
type RamdiskConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
	SizeMB  int64  `mapstructure:"size_mb" yaml:"size_mb" json:"size_mb"`
}

// QueueConfig holds the stuck-job windows
type QueueConfig struct {
	StuckAfter time.Duration `mapstructure:"stuck_after" yaml:"stuck_after" json:"stuck_after"` // Ignored by admission
	ReapAfter  time.Duration `mapstructure:"reap_after" yaml:"reap_after" json:"reap_after"`    // Failed by the reaper
}

// ScoringConfig selects the pathway formula and catalogue
type ScoringConfig struct {
	Formula   ScoringFormula `mapstructure:"formula" yaml:"formula" json:"formula"`
	Catalogue string         `mapstructure:"catalogue" yaml:"catalogue" json:"catalogue"` // Empty uses the embedded catalogue
}

// ScoringFormula names one of the two pathway score formulas
type ScoringFormula string

const (
	FormulaActivity  ScoringFormula = "activity"
	FormulaAbundance ScoringFormula = "abundance"
)

// ProgressConfig throttles progress persistence
type ProgressConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval" json:"min_interval"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() ProjectConfig {
	return ProjectConfig{
		DataDir: "./data",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 45 * time.Second,
			ReapInterval:    10 * time.Minute,
			MaxUploadMB:     512,
		},
		Tools: ToolsConfig{
			CPUCores:       4,
			PathStyle:      PathStyleNative,
			HMMSearch:      "hmmsearch",
			HMMFetch:       "hmmfetch",
			HMMPress:       "hmmpress",
			Diamond:        "diamond",
			Emapper:        "emapper.py",
			DownloadEggnog: "download_eggnog_data.py",
			Gunzip:         "gunzip",
		},
		References: ReferencesConfig{
			EggnogDir: "./references/eggnog",
			KofamDir:  "./references/kofam",
		},
		Ramdisk: RamdiskConfig{
			Path:   "/dev/shm/enzflow",
			SizeMB: 1024,
		},
		Queue: QueueConfig{
			StuckAfter: 6 * time.Hour,
			ReapAfter:  3 * time.Hour,
		},
		Scoring: ScoringConfig{
			Formula: FormulaActivity,
		},
		Progress: ProgressConfig{
			MinInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// DatabasePath returns the SQLite file location
func (c *ProjectConfig) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "enzflow.db")
}

// KOListPath returns the KO allow-list, defaulting into the kofam directory
func (r *ReferencesConfig) KOListPath() string {
	if r.KOList != "" {
		return r.KOList
	}
	return filepath.Join(r.KofamDir, "ko_list")
}

// ProfilesPath returns the full HMM profile database
func (r *ReferencesConfig) ProfilesPath() string {
	if r.Profiles != "" {
		return r.Profiles
	}
	return filepath.Join(r.KofamDir, "profiles.hmm")
}

// EggnogProteinsPath returns the full eggNOG protein FASTA
func (r *ReferencesConfig) EggnogProteinsPath() string {
	if r.EggnogProteins != "" {
		return r.EggnogProteins
	}
	return filepath.Join(r.EggnogDir, "eggnog_proteins.fa")
}

// FullDiamondDB returns the tier-2 DIAMOND database
func (r *ReferencesConfig) FullDiamondDB() string {
	return filepath.Join(r.EggnogDir, "eggnog_proteins.dmnd")
}
