package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the configuration surface consumed by the simulation core.
// It is loaded once at startup; the world never re-reads it.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	GridWidth  int `yaml:"grid_width"`
	GridHeight int `yaml:"grid_height"`
	TickRateHz int `yaml:"tick_rate_hz"`

	AppleTarget      int    `yaml:"apple_target"`
	AppleGrowth      int    `yaml:"apple_growth"`
	SnakeStartLength int    `yaml:"snake_start_length"`
	EdgePolicy       string `yaml:"edge_policy"`

	MaxSessions       int `yaml:"max_sessions"`
	RespawnDelayTicks int `yaml:"respawn_delay_ticks"`

	Liveness Liveness `yaml:"liveness"`
}

type Liveness struct {
	PingIntervalS int `yaml:"ping_interval_s"`
	PongMisses    int `yaml:"pong_misses"`
}

// Defaults mirrors the classic 50x25 game: one apple, growth of one
// segment per apple, start length 3, 70ms between ticks (~14Hz).
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		GridWidth:         50,
		GridHeight:        25,
		TickRateHz:        14,
		AppleTarget:       1,
		AppleGrowth:       1,
		SnakeStartLength:  3,
		EdgePolicy:        "wall",
		MaxSessions:       32,
		RespawnDelayTicks: 28,
		Liveness: Liveness{
			PingIntervalS: 20,
			PongMisses:    2,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.GridWidth < 4 || t.GridHeight < 4 {
		return fmt.Errorf("grid too small: %dx%d", t.GridWidth, t.GridHeight)
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive, got %d", t.TickRateHz)
	}
	if t.AppleTarget < 0 {
		return fmt.Errorf("apple_target must not be negative, got %d", t.AppleTarget)
	}
	if t.AppleGrowth < 1 {
		return fmt.Errorf("apple_growth must be at least 1, got %d", t.AppleGrowth)
	}
	if t.SnakeStartLength < 1 {
		return fmt.Errorf("snake_start_length must be at least 1, got %d", t.SnakeStartLength)
	}
	if t.SnakeStartLength > t.GridWidth && t.SnakeStartLength > t.GridHeight {
		return fmt.Errorf("snake_start_length %d does not fit a %dx%d grid", t.SnakeStartLength, t.GridWidth, t.GridHeight)
	}
	switch t.EdgePolicy {
	case "wall", "wrap":
	default:
		return fmt.Errorf("edge_policy must be wall or wrap, got %q", t.EdgePolicy)
	}
	if t.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", t.MaxSessions)
	}
	if t.RespawnDelayTicks < 0 {
		return fmt.Errorf("respawn_delay_ticks must not be negative, got %d", t.RespawnDelayTicks)
	}
	return nil
}
