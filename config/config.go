// Package config holds the tunable weights, thresholds and engine parameters.
//
// The weights are hand-tuned; they live here rather than in the scorer so they
// can be changed per deployment from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CompositeWeights weights the factors of the user-facing safety score.
type CompositeWeights struct {
	Crime       float64 `yaml:"crime"`
	Lighting    float64 `yaml:"lighting"`
	MainRoad    float64 `yaml:"main_road"`
	Activity    float64 `yaml:"activity"`
	Transit     float64 `yaml:"transit"`
	LitFraction float64 `yaml:"lit_fraction"`
}

func (w CompositeWeights) Sum() float64 {
	return w.Crime + w.Lighting + w.MainRoad + w.Activity + w.Transit + w.LitFraction
}

// PathfindingWeights weights the factors that steer the route search. Crime is absent on purpose.
type PathfindingWeights struct {
	MainRoad    float64 `yaml:"main_road"`
	Lighting    float64 `yaml:"lighting"`
	LitFraction float64 `yaml:"lit_fraction"`
}

func (w PathfindingWeights) Sum() float64 {
	return w.MainRoad + w.Lighting + w.LitFraction
}

// Density describes a per-kilometer density factor: features within Radius
// meters of the route count, Saturation per km maps to a full score.
type Density struct {
	Radius     float64 `yaml:"radius"`
	Saturation float64 `yaml:"saturation"`
}

type Scoring struct {
	Composite   CompositeWeights   `yaml:"composite"`
	Pathfinding PathfindingWeights `yaml:"pathfinding"`

	// 犯罪事件统计半径与每公里饱和阈值（>=Saturation/km 时得分为0）
	Crime       Density `yaml:"crime"`
	CCTV        Density `yaml:"cctv"`
	OpenPlaces  Density `yaml:"open_places"`
	Transit     Density `yaml:"transit"`
	SampleStep  float64 `yaml:"sample_step"`
	ExplicitLit float64 `yaml:"explicit_lit_share"`
	// 未知营业状态的场所按此权重计数
	UnknownOpenWeight float64 `yaml:"unknown_open_weight"`
}

type Selection struct {
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	SourceWeight    float64 `yaml:"source_weight"`
	BrevityBonus    float64 `yaml:"brevity_bonus"`
}

type Search struct {
	MaxRoutes        int     `yaml:"max_routes"`
	MaxAttempts      int     `yaml:"max_attempts"`
	DetourFactor     float64 `yaml:"detour_factor"`
	PenaltyFactor    float64 `yaml:"penalty_factor"`
	MinScore         float64 `yaml:"min_score"`
	RangeCeiling     float64 `yaml:"range_ceiling"`
	SnapTolerance    float64 `yaml:"snap_tolerance"`
	BoundMargin      float64 `yaml:"bound_margin"`
	WalkingSpeed     float64 `yaml:"walking_speed"`
	ResultPrecision  float64 `yaml:"result_precision"`
	GeodataCellDelta float64 `yaml:"geodata_cell"`
}

type Upstream struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	MinSpacing     time.Duration `yaml:"min_spacing"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

type Caches struct {
	GeodataTTL  time.Duration `yaml:"geodata_ttl"`
	GeodataSize int           `yaml:"geodata_size"`
	ResultTTL   time.Duration `yaml:"result_ttl"`
	ResultSize  int           `yaml:"result_size"`
}

type Config struct {
	Scoring   Scoring   `yaml:"scoring"`
	Selection Selection `yaml:"selection"`
	Search    Search    `yaml:"search"`
	Upstream  Upstream  `yaml:"upstream"`
	Caches    Caches    `yaml:"caches"`
}

// Default returns the configuration the service ships with.
func Default() *Config {
	return &Config{
		Scoring: Scoring{
			Composite: CompositeWeights{
				Crime:       0.30,
				Lighting:    0.22,
				MainRoad:    0.15,
				Activity:    0.13,
				Transit:     0.10,
				LitFraction: 0.10,
			},
			Pathfinding: PathfindingWeights{
				MainRoad:    0.45,
				Lighting:    0.30,
				LitFraction: 0.25,
			},
			Crime:             Density{Radius: 30, Saturation: 20},
			CCTV:              Density{Radius: 50, Saturation: 10},
			OpenPlaces:        Density{Radius: 50, Saturation: 15},
			Transit:           Density{Radius: 100, Saturation: 5},
			SampleStep:        30,
			ExplicitLit:       0.8,
			UnknownOpenWeight: 0.5,
		},
		Selection: Selection{
			ConfidenceFloor: 0.3,
			SourceWeight:    0.2,
			BrevityBonus:    10,
		},
		Search: Search{
			MaxRoutes:        5,
			MaxAttempts:      8,
			DetourFactor:     1.6,
			PenaltyFactor:    2.0,
			MinScore:         0.05,
			RangeCeiling:     15_000,
			SnapTolerance:    250,
			BoundMargin:      500,
			WalkingSpeed:     1.3,
			ResultPrecision:  1e-4,
			GeodataCellDelta: 0.01,
		},
		Upstream: Upstream{
			Timeout:        20 * time.Second,
			MaxConcurrent:  2,
			MinSpacing:     200 * time.Millisecond,
			MaxAttempts:    3,
			RetryBaseDelay: 200 * time.Millisecond,
			RetryMaxDelay:  2 * time.Second,
		},
		Caches: Caches{
			GeodataTTL:  10 * time.Minute,
			GeodataSize: 512,
			ResultTTL:   2 * time.Minute,
			ResultSize:  256,
		},
	}
}

// Load reads a YAML file on top of Default. An empty path returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Scoring.Composite.Sum() <= 0 {
		errs = append(errs, errors.New("scoring.composite weights must sum to a positive value"))
	}
	if c.Scoring.Pathfinding.Sum() <= 0 {
		errs = append(errs, errors.New("scoring.pathfinding weights must sum to a positive value"))
	}
	if c.Scoring.ExplicitLit < 0 || c.Scoring.ExplicitLit > 1 {
		errs = append(errs, errors.New("scoring.explicit_lit_share must be in [0,1]"))
	}
	for _, d := range []struct {
		name string
		Density
	}{
		{"crime", c.Scoring.Crime},
		{"cctv", c.Scoring.CCTV},
		{"open_places", c.Scoring.OpenPlaces},
		{"transit", c.Scoring.Transit},
	} {
		if d.Radius <= 0 || d.Saturation <= 0 {
			errs = append(errs, fmt.Errorf("scoring.%s radius and saturation must be positive", d.name))
		}
	}
	if c.Selection.ConfidenceFloor < 0 || c.Selection.ConfidenceFloor > 1 {
		errs = append(errs, errors.New("selection.confidence_floor must be in [0,1]"))
	}
	if c.Search.MaxRoutes < 1 || c.Search.MaxRoutes > 5 {
		errs = append(errs, errors.New("search.max_routes must be in [1,5]"))
	}
	if c.Search.MaxAttempts < c.Search.MaxRoutes {
		errs = append(errs, errors.New("search.max_attempts must be >= search.max_routes"))
	}
	if c.Search.DetourFactor < 1 {
		errs = append(errs, errors.New("search.detour_factor must be >= 1"))
	}
	if c.Search.PenaltyFactor <= 1 {
		errs = append(errs, errors.New("search.penalty_factor must be > 1"))
	}
	if c.Search.MinScore <= 0 || c.Search.MinScore > 1 {
		errs = append(errs, errors.New("search.min_score must be in (0,1]"))
	}
	if c.Search.RangeCeiling <= 0 || c.Search.SnapTolerance <= 0 || c.Search.WalkingSpeed <= 0 {
		errs = append(errs, errors.New("search.range_ceiling, snap_tolerance and walking_speed must be positive"))
	}
	if c.Search.ResultPrecision <= 0 || c.Search.GeodataCellDelta <= 0 {
		errs = append(errs, errors.New("search.result_precision and geodata_cell must be positive"))
	}
	if c.Upstream.MaxConcurrent < 1 || c.Upstream.MaxAttempts < 1 || c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.max_concurrent, max_attempts and timeout must be positive"))
	}
	return errors.Join(errs...)
}
