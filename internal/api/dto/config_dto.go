package dto

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// AssignmentSettings is the editable part of the assignment config.
type AssignmentSettings struct {
	Enabled              bool                `json:"enabled"`
	Strategy             domain.Strategy     `json:"strategy"`
	AssignOnCreate       bool                `json:"assign_on_create"`
	CheckOnlineStatus    bool                `json:"check_online_status"`
	SkillBasedAssignment bool                `json:"skill_based_assignment"`
	TopicSkills          map[string][]string `json:"topic_skills,omitempty"`
	ExcludedMembers      []string            `json:"excluded_members,omitempty"`
}

// VisibilitySettings maps priority buckets ("0".."2") to role ids.
type VisibilitySettings struct {
	LegacyTeamRole string              `json:"legacy_team_role,omitempty"`
	PriorityRoles  map[string][]string `json:"priority_roles,omitempty"`
}

// LifecycleSettings uses Go duration strings for the grace period.
type LifecycleSettings struct {
	CreatorClose      domain.ClosePolicy `json:"creator_close"`
	TeardownGrace     string             `json:"teardown_grace,omitempty"`
	TranscriptChannel string             `json:"transcript_channel,omitempty"`
	CategoryRef       string             `json:"category_ref,omitempty"`
}

// GuildConfigRequest is the body of PUT /guilds/:guild/config.
type GuildConfigRequest struct {
	Assignment AssignmentSettings `json:"assignment"`
	Visibility VisibilitySettings `json:"visibility"`
	Lifecycle  LifecycleSettings  `json:"lifecycle"`
}

// GuildConfigResponse is the view of a stored guild config.
type GuildConfigResponse struct {
	GuildID       string                 `json:"guild_id"`
	TicketCounter int64                  `json:"ticket_counter"`
	Assignment    AssignmentSettings     `json:"assignment"`
	Stats         domain.AssignmentStats `json:"assignment_stats"`
	HistorySize   int                    `json:"assignment_history_size"`
	Visibility    VisibilitySettings     `json:"visibility"`
	Lifecycle     LifecycleSettings      `json:"lifecycle"`
	Version       int64                  `json:"version"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ToDomain converts the request into a config record.
func (r GuildConfigRequest) ToDomain(guildID string) (domain.GuildConfig, error) {
	cfg := domain.DefaultGuildConfig(guildID)
	cfg.Assignment.Enabled = r.Assignment.Enabled
	cfg.Assignment.Strategy = r.Assignment.Strategy
	cfg.Assignment.AssignOnCreate = r.Assignment.AssignOnCreate
	cfg.Assignment.CheckOnlineStatus = r.Assignment.CheckOnlineStatus
	cfg.Assignment.SkillBasedAssignment = r.Assignment.SkillBasedAssignment
	cfg.Assignment.TopicSkills = r.Assignment.TopicSkills
	cfg.Assignment.ExcludedMembers = r.Assignment.ExcludedMembers

	cfg.Visibility.LegacyTeamRole = r.Visibility.LegacyTeamRole
	for key, roles := range r.Visibility.PriorityRoles {
		p, err := strconv.Atoi(key)
		if err != nil {
			return cfg, fmt.Errorf("visibility: priority bucket %q is not a number", key)
		}
		cfg.Visibility.PriorityRoles[domain.Priority(p)] = roles
	}

	cfg.Lifecycle.CreatorClose = r.Lifecycle.CreatorClose
	cfg.Lifecycle.TranscriptChannel = r.Lifecycle.TranscriptChannel
	cfg.Lifecycle.CategoryRef = r.Lifecycle.CategoryRef
	if r.Lifecycle.TeardownGrace != "" {
		d, err := time.ParseDuration(r.Lifecycle.TeardownGrace)
		if err != nil {
			return cfg, fmt.Errorf("lifecycle: teardown_grace: %w", err)
		}
		cfg.Lifecycle.TeardownGrace = d
	}
	return cfg, nil
}

// NewGuildConfigResponse maps a config record.
func NewGuildConfigResponse(cfg *domain.GuildConfig) GuildConfigResponse {
	roles := make(map[string][]string, len(cfg.Visibility.PriorityRoles))
	for p, r := range cfg.Visibility.PriorityRoles {
		roles[strconv.Itoa(int(p))] = r
	}
	return GuildConfigResponse{
		GuildID:       cfg.GuildID,
		TicketCounter: cfg.TicketCounter,
		Assignment: AssignmentSettings{
			Enabled:              cfg.Assignment.Enabled,
			Strategy:             cfg.Assignment.Strategy,
			AssignOnCreate:       cfg.Assignment.AssignOnCreate,
			CheckOnlineStatus:    cfg.Assignment.CheckOnlineStatus,
			SkillBasedAssignment: cfg.Assignment.SkillBasedAssignment,
			TopicSkills:          cfg.Assignment.TopicSkills,
			ExcludedMembers:      cfg.Assignment.ExcludedMembers,
		},
		Stats:       cfg.Assignment.Stats,
		HistorySize: len(cfg.Assignment.History),
		Visibility: VisibilitySettings{
			LegacyTeamRole: cfg.Visibility.LegacyTeamRole,
			PriorityRoles:  roles,
		},
		Lifecycle: LifecycleSettings{
			CreatorClose:      cfg.Lifecycle.CreatorClose,
			TeardownGrace:     cfg.Lifecycle.TeardownGrace.String(),
			TranscriptChannel: cfg.Lifecycle.TranscriptChannel,
			CategoryRef:       cfg.Lifecycle.CategoryRef,
		},
		Version:   cfg.Version,
		UpdatedAt: cfg.UpdatedAt,
	}
}

// AssignmentPreviewRequest payload.
type AssignmentPreviewRequest struct {
	Topic    string `json:"topic"`
	Priority int    `json:"priority"`
}

// AssignmentPreviewResponse reports who would be picked.
type AssignmentPreviewResponse struct {
	MemberID string          `json:"member_id,omitempty"`
	Picked   bool            `json:"picked"`
	Enabled  bool            `json:"enabled"`
	Strategy domain.Strategy `json:"strategy"`
	Eligible []string        `json:"eligible"`
}

// RenameRequest payload.
type RenameRequest struct {
	Name string `json:"name"`
}
