package domain

import (
	"fmt"
	"time"
)

// AssignmentHistoryCapacity bounds AssignmentConfig.History.
const AssignmentHistoryCapacity = 100

// DefaultTeardownGrace is the delay between close and channel deletion.
const DefaultTeardownGrace = 10 * time.Second

// Strategy selects how the assignment engine picks among eligible members.
type Strategy string

const (
	StrategyRoundRobin    Strategy = "round_robin"
	StrategyWorkload      Strategy = "workload"
	StrategyRandom        Strategy = "random"
	StrategyPriorityQueue Strategy = "priority_queue"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRoundRobin, StrategyWorkload, StrategyRandom, StrategyPriorityQueue:
		return true
	}
	return false
}

// ClosePolicy controls whether a ticket creator may close their own ticket.
type ClosePolicy string

const (
	// ClosePolicyTeamOnly never lets a creator close.
	ClosePolicyTeamOnly ClosePolicy = "team_only"
	// ClosePolicyApproval lets a creator close with a valid close-request approval.
	ClosePolicyApproval ClosePolicy = "approval"
	// ClosePolicyDirect lets a creator close at any time.
	ClosePolicyDirect ClosePolicy = "direct"
)

// Valid reports whether p is a known policy.
func (p ClosePolicy) Valid() bool {
	switch p {
	case ClosePolicyTeamOnly, ClosePolicyApproval, ClosePolicyDirect:
		return true
	}
	return false
}

// AssignmentRecord is one entry of the assignment history.
type AssignmentRecord struct {
	MemberID   string    `json:"member_id" yaml:"member_id"`
	TicketID   int64     `json:"ticket_id" yaml:"ticket_id"`
	AssignedAt time.Time `json:"assigned_at" yaml:"assigned_at"`
}

// AssignmentStats aggregates successful picks.
type AssignmentStats struct {
	TotalAssignments int64            `json:"total_assignments" yaml:"total_assignments"`
	ByMember         map[string]int64 `json:"by_member" yaml:"by_member"`
}

// AssignmentConfig controls automatic responder selection for a guild.
type AssignmentConfig struct {
	Enabled              bool                `json:"enabled" yaml:"enabled"`
	Strategy             Strategy            `json:"strategy" yaml:"strategy"`
	AssignOnCreate       bool                `json:"assign_on_create" yaml:"assign_on_create"`
	CheckOnlineStatus    bool                `json:"check_online_status" yaml:"check_online_status"`
	SkillBasedAssignment bool                `json:"skill_based_assignment" yaml:"skill_based_assignment"`
	TopicSkills          map[string][]string `json:"topic_skills,omitempty" yaml:"topic_skills"`
	ExcludedMembers      []string            `json:"excluded_members,omitempty" yaml:"excluded_members"`
	History              []AssignmentRecord  `json:"history,omitempty" yaml:"history"`
	Stats                AssignmentStats     `json:"stats" yaml:"stats"`
}

// Validate rejects malformed assignment settings.
func (c AssignmentConfig) Validate() error {
	if !c.Strategy.Valid() {
		return fmt.Errorf("assignment: unknown strategy %q", c.Strategy)
	}
	if len(c.History) > AssignmentHistoryCapacity {
		return fmt.Errorf("assignment: history has %d entries, capacity is %d", len(c.History), AssignmentHistoryCapacity)
	}
	var sum int64
	for member, n := range c.Stats.ByMember {
		if n < 0 {
			return fmt.Errorf("assignment: negative count for member %s", member)
		}
		sum += n
	}
	if sum != c.Stats.TotalAssignments {
		return fmt.Errorf("assignment: per-member counts sum to %d, total is %d", sum, c.Stats.TotalAssignments)
	}
	return nil
}

// VisibilityConfig maps priority levels to the responder roles that may see a ticket.
type VisibilityConfig struct {
	LegacyTeamRole string                `json:"legacy_team_role,omitempty" yaml:"legacy_team_role"`
	PriorityRoles  map[Priority][]string `json:"priority_roles,omitempty" yaml:"priority_roles"`
}

// Validate rejects buckets outside the priority range.
func (c VisibilityConfig) Validate() error {
	for p := range c.PriorityRoles {
		if !p.Valid() {
			return fmt.Errorf("visibility: priority bucket %d out of range", p)
		}
	}
	return nil
}

// TeamRoles returns every role that carries team capability: the legacy role
// plus every priority bucket.
func (c VisibilityConfig) TeamRoles() []string {
	roles := make([]string, 0, 1+len(c.PriorityRoles)*2)
	if c.LegacyTeamRole != "" {
		roles = append(roles, c.LegacyTeamRole)
	}
	for _, bucket := range c.PriorityRoles {
		roles = append(roles, bucket...)
	}
	return NormalizeSet(roles)
}

// LifecyclePolicy holds per-guild lifecycle switches.
type LifecyclePolicy struct {
	CreatorClose      ClosePolicy   `json:"creator_close" yaml:"creator_close"`
	TeardownGrace     time.Duration `json:"teardown_grace" yaml:"teardown_grace"`
	TranscriptChannel string        `json:"transcript_channel,omitempty" yaml:"transcript_channel"`
	CategoryRef       string        `json:"category_ref,omitempty" yaml:"category_ref"`
}

// Validate rejects unknown policies and negative delays.
func (p LifecyclePolicy) Validate() error {
	if !p.CreatorClose.Valid() {
		return fmt.Errorf("lifecycle: unknown creator close policy %q", p.CreatorClose)
	}
	if p.TeardownGrace < 0 {
		return fmt.Errorf("lifecycle: negative teardown grace")
	}
	return nil
}

// GuildConfig is the per-guild configuration record.
type GuildConfig struct {
	GuildID       string           `json:"guild_id" yaml:"guild_id"`
	TicketCounter int64            `json:"ticket_counter" yaml:"ticket_counter"`
	Assignment    AssignmentConfig `json:"assignment" yaml:"assignment"`
	Visibility    VisibilityConfig `json:"visibility" yaml:"visibility"`
	Lifecycle     LifecyclePolicy  `json:"lifecycle" yaml:"lifecycle"`
	Version       int64            `json:"version" yaml:"-"`
	UpdatedAt     time.Time        `json:"updated_at" yaml:"-"`
}

// DefaultGuildConfig returns the configuration used for guilds without a record.
func DefaultGuildConfig(guildID string) GuildConfig {
	return GuildConfig{
		GuildID: guildID,
		Assignment: AssignmentConfig{
			Strategy: StrategyWorkload,
			Stats:    AssignmentStats{ByMember: map[string]int64{}},
		},
		Visibility: VisibilityConfig{PriorityRoles: map[Priority][]string{}},
		Lifecycle: LifecyclePolicy{
			CreatorClose:  ClosePolicyApproval,
			TeardownGrace: DefaultTeardownGrace,
		},
	}
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *GuildConfig) ApplyDefaults() {
	if c.Assignment.Strategy == "" {
		c.Assignment.Strategy = StrategyWorkload
	}
	if c.Assignment.Stats.ByMember == nil {
		c.Assignment.Stats.ByMember = map[string]int64{}
	}
	if c.Visibility.PriorityRoles == nil {
		c.Visibility.PriorityRoles = map[Priority][]string{}
	}
	if c.Lifecycle.CreatorClose == "" {
		c.Lifecycle.CreatorClose = ClosePolicyApproval
	}
	if c.Lifecycle.TeardownGrace == 0 {
		c.Lifecycle.TeardownGrace = DefaultTeardownGrace
	}
}

// Validate checks every subsystem section.
func (c GuildConfig) Validate() error {
	if c.GuildID == "" {
		return fmt.Errorf("guild config: guild id required")
	}
	if c.TicketCounter < 0 {
		return fmt.Errorf("guild config: negative ticket counter")
	}
	if err := c.Assignment.Validate(); err != nil {
		return err
	}
	if err := c.Visibility.Validate(); err != nil {
		return err
	}
	return c.Lifecycle.Validate()
}

// Clone returns a deep copy.
func (c *GuildConfig) Clone() *GuildConfig {
	out := *c
	out.Assignment.TopicSkills = cloneSetMap(c.Assignment.TopicSkills)
	out.Assignment.ExcludedMembers = append([]string(nil), c.Assignment.ExcludedMembers...)
	out.Assignment.History = append([]AssignmentRecord(nil), c.Assignment.History...)
	out.Assignment.Stats.ByMember = make(map[string]int64, len(c.Assignment.Stats.ByMember))
	for k, v := range c.Assignment.Stats.ByMember {
		out.Assignment.Stats.ByMember[k] = v
	}
	if c.Visibility.PriorityRoles != nil {
		out.Visibility.PriorityRoles = make(map[Priority][]string, len(c.Visibility.PriorityRoles))
		for k, v := range c.Visibility.PriorityRoles {
			out.Visibility.PriorityRoles[k] = append([]string(nil), v...)
		}
	}
	return &out
}

func cloneSetMap(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
