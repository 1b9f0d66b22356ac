package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	GridWidth  int `yaml:"grid_width"`
	GridHeight int `yaml:"grid_height"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ArchiveEveryTicks  int `yaml:"archive_every_ticks"`

	MaxTier       int `yaml:"max_tier"`
	RewardBase    int `yaml:"reward_base"`
	MaxChainDepth int `yaml:"max_chain_depth"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RateLimits struct {
	CmdWindowTicks int `yaml:"cmd_window_ticks"`
	CmdMax         int `yaml:"cmd_max"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}

func Defaults() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

func (t *Tuning) ApplyDefaults() {
	if t.GridWidth <= 0 {
		t.GridWidth = 10
	}
	if t.GridHeight <= 0 {
		t.GridHeight = 10
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 10
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = 600
	}
	if t.ArchiveEveryTicks <= 0 {
		t.ArchiveEveryTicks = 6000
	}
	if t.MaxTier <= 0 {
		t.MaxTier = 5
	}
	if t.RewardBase <= 0 {
		t.RewardBase = 10
	}
	if t.MaxChainDepth <= 0 {
		t.MaxChainDepth = 32
	}
	t.RateLimits.applyDefaults()
}

func (rl *RateLimits) applyDefaults() {
	if rl.CmdWindowTicks <= 0 {
		rl.CmdWindowTicks = 10
	}
	if rl.CmdMax <= 0 {
		rl.CmdMax = 20
	}
}
