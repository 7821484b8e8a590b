package domain

// Presence enumerates platform presence states.
type Presence string

const (
	PresenceOnline    Presence = "online"
	PresenceIdle      Presence = "idle"
	PresenceDND       Presence = "dnd"
	PresenceOffline   Presence = "offline"
	PresenceInvisible Presence = "invisible"
)

// Available reports whether the presence counts as reachable for assignment.
func (p Presence) Available() bool {
	return p == PresenceOnline || p == PresenceIdle || p == PresenceDND
}

// Member is a guild roster entry as reported by the platform.
type Member struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Bot      bool     `json:"bot"`
	Roles    []string `json:"roles"`
	Presence Presence `json:"presence"`
}

// HasAnyRole reports whether the member holds at least one role in roles.
func (m Member) HasAnyRole(roles []string) bool {
	for _, r := range m.Roles {
		if Contains(roles, r) {
			return true
		}
	}
	return false
}

// Actor is the caller of a ticket operation. Identity and capability flags
// are supplied by the caller and trusted as-is.
type Actor struct {
	ID    string `json:"id"`
	Team  bool   `json:"team"`
	Admin bool   `json:"admin"`
}

// HasTeamCapability reports responder or administrative privilege.
func (a Actor) HasTeamCapability() bool {
	return a.Team || a.Admin
}

// SystemActor builds the actor used for internal transitions such as auto-claim.
func SystemActor(memberID string) Actor {
	return Actor{ID: memberID, Team: true}
}
