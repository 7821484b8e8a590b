package domain

// Permission is a channel capability bit.
type Permission uint64

const (
	PermViewChannel Permission = 1 << iota
	PermSendMessages
	PermReadHistory
	PermAttachFiles
	PermEmbedLinks
)

// PermParticipant is the allow mask granted to everyone who may take part in a ticket.
const PermParticipant = PermViewChannel | PermSendMessages | PermReadHistory | PermAttachFiles | PermEmbedLinks

// PrincipalKind distinguishes overwrite targets.
type PrincipalKind string

const (
	PrincipalEveryone PrincipalKind = "everyone"
	PrincipalRole     PrincipalKind = "role"
	PrincipalMember   PrincipalKind = "member"
)

// Overwrite grants or denies permissions to one principal on one channel.
type Overwrite struct {
	Kind  PrincipalKind `json:"kind"`
	ID    string        `json:"id,omitempty"`
	Allow Permission    `json:"allow"`
	Deny  Permission    `json:"deny"`
}

// PermissionSet is the complete overwrite list of a ticket channel. It is
// always applied as a whole.
type PermissionSet struct {
	Overwrites []Overwrite `json:"overwrites"`
}

// Lookup returns the overwrite for a principal.
func (s PermissionSet) Lookup(kind PrincipalKind, id string) (Overwrite, bool) {
	for _, o := range s.Overwrites {
		if o.Kind == kind && o.ID == id {
			return o, true
		}
	}
	return Overwrite{}, false
}

// AllowedRoles returns role ids granted view access.
func (s PermissionSet) AllowedRoles() []string {
	return s.ids(PrincipalRole, true)
}

// DeniedRoles returns role ids explicitly denied view access.
func (s PermissionSet) DeniedRoles() []string {
	return s.ids(PrincipalRole, false)
}

// AllowedMembers returns member ids granted view access.
func (s PermissionSet) AllowedMembers() []string {
	return s.ids(PrincipalMember, true)
}

func (s PermissionSet) ids(kind PrincipalKind, allowed bool) []string {
	var out []string
	for _, o := range s.Overwrites {
		if o.Kind != kind {
			continue
		}
		if allowed && o.Allow&PermViewChannel != 0 {
			out = append(out, o.ID)
		}
		if !allowed && o.Deny&PermViewChannel != 0 {
			out = append(out, o.ID)
		}
	}
	return out
}
