// Package access computes the channel permission overwrites of a ticket.
package access

import (
	"slices"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// VisibleRoles returns the roles that may see a ticket at the given priority:
// the legacy team role plus every bucket from 0 up to priority. The result is
// a sorted set and grows monotonically with priority.
func VisibleRoles(cfg domain.VisibilityConfig, priority domain.Priority) []string {
	roles := make([]string, 0, 8)
	if cfg.LegacyTeamRole != "" {
		roles = append(roles, cfg.LegacyTeamRole)
	}
	for p := domain.MinPriority; p <= priority.Clamp(); p++ {
		roles = append(roles, cfg.PriorityRoles[p]...)
	}
	return domain.NormalizeSet(roles)
}

// HiddenRoles returns roles configured only for buckets above priority.
func HiddenRoles(cfg domain.VisibilityConfig, priority domain.Priority) []string {
	visible := VisibleRoles(cfg, priority)
	var roles []string
	for p := priority.Clamp() + 1; p <= domain.MaxPriority; p++ {
		for _, r := range cfg.PriorityRoles[p] {
			if !slices.Contains(visible, r) {
				roles = append(roles, r)
			}
		}
	}
	return domain.NormalizeSet(roles)
}

// Resolve computes the complete permission set of a ticket channel.
//
// Hidden tickets deny every configured team role so that only the claimer,
// the creator and explicitly added users keep access.
func Resolve(ticket *domain.Ticket, cfg domain.VisibilityConfig) domain.PermissionSet {
	set := domain.PermissionSet{
		Overwrites: []domain.Overwrite{{Kind: domain.PrincipalEveryone, Deny: domain.PermViewChannel}},
	}

	var allowRoles, denyRoles []string
	if ticket.Hidden {
		denyRoles = cfg.TeamRoles()
	} else {
		allowRoles = VisibleRoles(cfg, ticket.Priority)
		denyRoles = HiddenRoles(cfg, ticket.Priority)
	}
	for _, r := range allowRoles {
		set.Overwrites = append(set.Overwrites, domain.Overwrite{Kind: domain.PrincipalRole, ID: r, Allow: domain.PermParticipant})
	}
	for _, r := range denyRoles {
		set.Overwrites = append(set.Overwrites, domain.Overwrite{Kind: domain.PrincipalRole, ID: r, Deny: domain.PermViewChannel})
	}

	members := make([]string, 0, 2+len(ticket.AddedUsers))
	members = append(members, ticket.CreatorID)
	if ticket.ClaimerID != nil {
		members = append(members, *ticket.ClaimerID)
	}
	members = append(members, ticket.AddedUsers...)
	for _, m := range domain.NormalizeSet(members) {
		set.Overwrites = append(set.Overwrites, domain.Overwrite{Kind: domain.PrincipalMember, ID: m, Allow: domain.PermParticipant})
	}

	sortOverwrites(set.Overwrites[1:])
	return set
}

var kindOrder = map[domain.PrincipalKind]int{
	domain.PrincipalEveryone: 0,
	domain.PrincipalRole:     1,
	domain.PrincipalMember:   2,
}

func sortOverwrites(list []domain.Overwrite) {
	slices.SortStableFunc(list, func(a, b domain.Overwrite) int {
		if kindOrder[a.Kind] != kindOrder[b.Kind] {
			return kindOrder[a.Kind] - kindOrder[b.Kind]
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
