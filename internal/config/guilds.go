package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// guildSeedFile is the on-disk layout of GUILD_SEED_FILE.
type guildSeedFile struct {
	Guilds []guildSeed `yaml:"guilds"`
}

type guildSeed struct {
	ID         string                  `yaml:"id"`
	Assignment domain.AssignmentConfig `yaml:"assignment"`
	Visibility visibilitySeed          `yaml:"visibility"`
	Lifecycle  lifecycleSeed           `yaml:"lifecycle"`
}

type visibilitySeed struct {
	LegacyTeamRole string   `yaml:"legacy_team_role"`
	Low            []string `yaml:"low"`
	Medium         []string `yaml:"medium"`
	High           []string `yaml:"high"`
}

type lifecycleSeed struct {
	CreatorClose      domain.ClosePolicy `yaml:"creator_close"`
	TeardownGrace     string             `yaml:"teardown_grace"`
	TranscriptChannel string             `yaml:"transcript_channel"`
	CategoryRef       string             `yaml:"category_ref"`
}

// LoadGuildSeeds parses and validates a YAML guild seed file.
func LoadGuildSeeds(path string) ([]domain.GuildConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guild seed: %w", err)
	}
	return ParseGuildSeeds(raw)
}

// ParseGuildSeeds decodes seed YAML into validated guild configurations.
func ParseGuildSeeds(raw []byte) ([]domain.GuildConfig, error) {
	var file guildSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode guild seed: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Guilds))
	out := make([]domain.GuildConfig, 0, len(file.Guilds))
	var errs []error
	for i, g := range file.Guilds {
		if g.ID == "" {
			errs = append(errs, fmt.Errorf("guilds[%d]: id is required", i))
			continue
		}
		if _, dup := seen[g.ID]; dup {
			errs = append(errs, fmt.Errorf("guilds[%d]: duplicate id %q", i, g.ID))
			continue
		}
		seen[g.ID] = struct{}{}

		cfg, err := g.toGuildConfig()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", g.ID, err))
			continue
		}
		out = append(out, cfg)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (g guildSeed) toGuildConfig() (domain.GuildConfig, error) {
	cfg := domain.DefaultGuildConfig(g.ID)
	cfg.Assignment = g.Assignment
	cfg.Visibility = domain.VisibilityConfig{
		LegacyTeamRole: g.Visibility.LegacyTeamRole,
		PriorityRoles: map[domain.Priority][]string{
			domain.PriorityLow:    g.Visibility.Low,
			domain.PriorityMedium: g.Visibility.Medium,
			domain.PriorityHigh:   g.Visibility.High,
		},
	}
	cfg.Lifecycle.CreatorClose = g.Lifecycle.CreatorClose
	cfg.Lifecycle.TranscriptChannel = g.Lifecycle.TranscriptChannel
	cfg.Lifecycle.CategoryRef = g.Lifecycle.CategoryRef
	if g.Lifecycle.TeardownGrace != "" {
		d, err := time.ParseDuration(g.Lifecycle.TeardownGrace)
		if err != nil {
			return cfg, fmt.Errorf("teardown_grace: %w", err)
		}
		cfg.Lifecycle.TeardownGrace = d
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
