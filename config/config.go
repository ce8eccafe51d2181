package config

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/vcsforge/rcsmerge/internal/diffanalyze"
)

// GridMode selects which DiffMerge resolution grid is used for a merge
// (spec.md §4.5).
type GridMode int

const (
	// Optimal aggressively resolves ambiguous merge points.
	Optimal GridMode = iota
	// Guarded is accepted as a separate mode, but diffmerge resolves it with
	// exactly the same rules as Optimal; it has no decision table of its own.
	Guarded
	// TwoWay treats the merge as a two-way diff with a faked-empty base.
	TwoWay
)

func (g GridMode) String() string {
	switch g {
	case Optimal:
		return "optimal"
	case Guarded:
		return "guarded"
	case TwoWay:
		return "twoway"
	default:
		return "unknown"
	}
}

// ParseGridMode parses the textual form used in config files and flags.
func ParseGridMode(s string) (GridMode, error) {
	switch strings.ToLower(s) {
	case "optimal", "":
		return Optimal, nil
	case "guarded":
		return Guarded, nil
	case "twoway", "two-way":
		return TwoWay, nil
	default:
		return Optimal, fmt.Errorf("unknown grid mode %q", s)
	}
}

// Markers are the conflict-marker line prefixes emitted by a 3-way merge
// result stream (spec.md §6.3).
type Markers struct {
	Original string `yaml:"original"`
	Theirs   string `yaml:"theirs"`
	Yours    string `yaml:"yours"`
	Both     string `yaml:"both"`
	End      string `yaml:"end"`
}

// DefaultMarkers matches spec.md §6.3's default prefixes.
func DefaultMarkers() Markers {
	return Markers{
		Original: ">>>> ORIGINAL",
		Theirs:   "==== THEIRS",
		Yours:    "==== YOURS",
		Both:     "==== BOTH",
		End:      "<<<<",
	}
}

// Empty reports whether m is the zero value, used to detect "not set in
// YAML" so New's defaults survive partial config files.
func (m Markers) Empty() bool {
	return m == Markers{}
}

// Default tunable values, named after the empirical constants spec.md §9
// documents as test knobs rather than derived quantities.
const (
	defaultSThresh       = 1000
	defaultSLimit1       = 10000
	defaultSLimit2       = 50000
	defaultMinSearch     = 42
	defaultRCSMaxInsert  = 1_000_000_000
	defaultMmapLimit     = 64 << 20 // 64 MiB
	defaultReadBufSize   = 4096
	defaultContextLines  = 3
	maxMultiMergeLineLen = 10000
)

// Config carries the process-wide tunables spec.md §9 says must be passed
// explicitly into each engine rather than read from ambient globals.
type Config struct {
	// DiffSearchThreshold / DiffSearchLimit1 / DiffSearchLimit2 are the
	// sThresh/sLimit1/sLimit2 tunables for DiffAnalyze's maxD budget
	// (spec.md §4.3).
	DiffSearchThreshold int `yaml:"diff_search_threshold"`
	DiffSearchLimit1    int `yaml:"diff_search_limit1"`
	DiffSearchLimit2    int `yaml:"diff_search_limit2"`

	// MinSearchBudget is the hard floor on maxD (spec.md §9, Open
	// Question a).
	MinSearchBudget int `yaml:"min_search_budget"`

	// RCSMaxInsert is loaded and defaulted here but not read by
	// internal/rcs: checkout bounds insert counts with its own fixed
	// maxInsertLines constant, and changing this field has no effect.
	RCSMaxInsert int64 `yaml:"rcs_max_insert"`

	// RCSNoFsync is loaded here but not read: WriteArchive never calls
	// fsync before its rename, whatever this field says.
	RCSNoFsync bool `yaml:"rcs_no_fsync"`

	// MmapLimit is the largest file size ReadFile will memory-map;
	// bigger files fall back to the sliding-buffer backend (spec.md §4.1).
	MmapLimit int64 `yaml:"mmap_limit"`

	// ReadBufSize is the sliding-buffer size for the non-mmap backend.
	ReadBufSize int `yaml:"read_buf_size"`

	// ContextLines is the default context size for context/unified diff
	// output (spec.md §4.4).
	ContextLines int `yaml:"context_lines"`

	// GridName selects DefaultGrid; resolved in validate().
	GridName    string `yaml:"default_grid"`
	DefaultGrid GridMode

	// MaxLineLength records MultiMerge's 10000-byte line truncation limit;
	// validate always resets it to 10000. multimerge does not read this
	// field; it truncates with its own constant of the same value.
	MaxLineLength int

	MergeMarkers   Markers `yaml:"merge_markers"`
	ShowAllMarkers bool    `yaml:"show_all_markers"`
}

// New returns a Config populated with the documented defaults.
func New() *Config {
	return &Config{
		DiffSearchThreshold: defaultSThresh,
		DiffSearchLimit1:    defaultSLimit1,
		DiffSearchLimit2:    defaultSLimit2,
		MinSearchBudget:     defaultMinSearch,
		RCSMaxInsert:        defaultRCSMaxInsert,
		MmapLimit:           defaultMmapLimit,
		ReadBufSize:         defaultReadBufSize,
		ContextLines:        defaultContextLines,
		GridName:            "optimal",
		DefaultGrid:         Optimal,
		MaxLineLength:       maxMultiMergeLineLen,
		MergeMarkers:        DefaultMarkers(),
	}
}

// Budget converts the configured diff-search tunables into the
// diffanalyze.Budget shape every C3 call site needs (spec.md §4.3); kept
// as one conversion point so engines never read the yaml-tagged fields
// directly.
func (c *Config) Budget() diffanalyze.Budget {
	return diffanalyze.Budget{
		Threshold: c.DiffSearchThreshold,
		Limit1:    c.DiffSearchLimit1,
		Limit2:    c.DiffSearchLimit2,
		MinFloor:  c.MinSearchBudget,
	}
}

// Unmarshal parses YAML config bytes over the documented defaults.
func Unmarshal(content []byte) (*Config, error) {
	cfg := New()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and validates a config file, falling back to
// documented defaults if the file does not exist.
func LoadConfigFile(filename string) (*Config, error) {
	if filename == "" {
		return New(), nil
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("failed to load %v: %v", filename, err)
	}
	return Unmarshal(content)
}

func (c *Config) validate() error {
	if c.DiffSearchThreshold <= 0 || c.DiffSearchLimit1 <= 0 || c.DiffSearchLimit2 <= 0 {
		return fmt.Errorf("diff search tunables must be positive")
	}
	grid, err := ParseGridMode(c.GridName)
	if err != nil {
		return err
	}
	c.DefaultGrid = grid
	c.MaxLineLength = maxMultiMergeLineLen
	if c.MergeMarkers.Empty() {
		c.MergeMarkers = DefaultMarkers()
	}
	return nil
}
