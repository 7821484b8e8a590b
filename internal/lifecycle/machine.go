// Package lifecycle validates and applies ticket transitions in memory.
//
// The machine never performs I/O. Callers load a ticket, call Apply on a copy,
// and persist the copy only when Apply succeeds.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-channels/internal/domain"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// Action names a transition.
type Action string

const (
	ActionClaim        Action = "claim"
	ActionUnclaim      Action = "unclaim"
	ActionHide         Action = "hide"
	ActionUnhide       Action = "unhide"
	ActionPriorityUp   Action = "priority_up"
	ActionPriorityDown Action = "priority_down"
	ActionClose        Action = "close"
	ActionRequestClose Action = "request_close"
	ActionAddUser      Action = "add_user"
	ActionRemoveUser   Action = "remove_user"
	ActionAddNote      Action = "add_note"
	ActionTag          Action = "tag"
	ActionUntag        Action = "untag"
)

// ParseAction validates an action name.
func ParseAction(name string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	switch a {
	case ActionClaim, ActionUnclaim, ActionHide, ActionUnhide, ActionPriorityUp, ActionPriorityDown,
		ActionClose, ActionRequestClose, ActionAddUser, ActionRemoveUser, ActionAddNote, ActionTag, ActionUntag:
		return a, true
	}
	return "", false
}

// Args carries optional transition parameters.
type Args struct {
	Reason        string `json:"reason,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Text          string `json:"text,omitempty"`
	Tag           string `json:"tag,omitempty"`
	ApprovalToken string `json:"approval_token,omitempty"`
}

// Outcome describes the effects of a successful transition.
type Outcome struct {
	Action             Action
	From               domain.TicketState
	To                 domain.TicketState
	Changed            bool
	PermissionsChanged bool
	NameChanged        bool
	ChangeType         domain.TicketChangeType
	OldValue           map[string]any
	NewValue           map[string]any
}

// ApprovalVerifier checks a creator's close-approval token.
type ApprovalVerifier interface {
	VerifyCloseApproval(ctx context.Context, token string, ticket *domain.Ticket, actorID string) error
}

// Machine applies transitions under a close policy.
type Machine struct {
	approvals ApprovalVerifier
	now       func() time.Time
	newID     func() string
}

// NewMachine builds a machine. approvals may be nil, in which case creators
// can only close under the direct policy.
func NewMachine(approvals ApprovalVerifier, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{approvals: approvals, now: now, newID: uuid.NewString}
}

// Apply validates action against the ticket and actor and mutates t in place.
// On error t may be partially modified and must be discarded.
func (m *Machine) Apply(ctx context.Context, t *domain.Ticket, action Action, actor domain.Actor, args Args, policy domain.ClosePolicy) (Outcome, error) {
	out := Outcome{Action: action, From: t.State()}
	if !t.IsOpen() {
		return out, invalid(t, action, "ticket is closed")
	}

	var err error
	switch action {
	case ActionClaim:
		err = m.claim(t, actor, &out)
	case ActionUnclaim:
		err = m.unclaim(t, actor, &out)
	case ActionHide:
		err = m.setHidden(t, actor, true, &out)
	case ActionUnhide:
		err = m.setHidden(t, actor, false, &out)
	case ActionPriorityUp:
		err = m.shiftPriority(t, actor, +1, &out)
	case ActionPriorityDown:
		err = m.shiftPriority(t, actor, -1, &out)
	case ActionClose:
		err = m.close(ctx, t, actor, args, policy, &out)
	case ActionRequestClose:
		err = m.requestClose(t, actor, args, &out)
	case ActionAddUser:
		err = m.editUsers(t, actor, args.UserID, true, &out)
	case ActionRemoveUser:
		err = m.editUsers(t, actor, args.UserID, false, &out)
	case ActionAddNote:
		err = m.addNote(t, actor, args.Text, &out)
	case ActionTag:
		err = m.editTags(t, actor, args.Tag, true, &out)
	case ActionUntag:
		err = m.editTags(t, actor, args.Tag, false, &out)
	default:
		return out, apperrors.NewValidationError("unknown action", map[string]any{"action": string(action)})
	}
	if err != nil {
		return out, err
	}
	out.To = t.State()
	if err := t.CheckInvariants(); err != nil {
		return out, apperrors.NewInternalError(err)
	}
	return out, nil
}

func (m *Machine) claim(t *domain.Ticket, actor domain.Actor, out *Outcome) error {
	if err := requireTeam(t, actor, ActionClaim); err != nil {
		return err
	}
	if t.ClaimerID != nil {
		return invalid(t, ActionClaim, "ticket already claimed")
	}
	now := m.now()
	id := actor.ID
	t.ClaimerID = &id
	t.ClaimedAt = &now
	out.mark(domain.ChangeTypeClaim, map[string]any{"claimer_id": nil}, map[string]any{"claimer_id": id})
	out.PermissionsChanged, out.NameChanged = true, true
	return nil
}

func (m *Machine) unclaim(t *domain.Ticket, actor domain.Actor, out *Outcome) error {
	if t.ClaimerID == nil {
		return invalid(t, ActionUnclaim, "ticket is not claimed")
	}
	if !t.IsClaimedBy(actor.ID) && !actor.Admin {
		return denied(t, ActionUnclaim, "only the claimer or an admin can unclaim")
	}
	old := *t.ClaimerID
	t.ClaimerID = nil
	t.ClaimedAt = nil
	t.Hidden = false
	out.mark(domain.ChangeTypeClaim, map[string]any{"claimer_id": old}, map[string]any{"claimer_id": nil})
	out.PermissionsChanged, out.NameChanged = true, true
	return nil
}

func (m *Machine) setHidden(t *domain.Ticket, actor domain.Actor, hidden bool, out *Outcome) error {
	action := ActionHide
	want := domain.StateOpenClaimed
	if !hidden {
		action = ActionUnhide
		want = domain.StateOpenClaimedHidden
	}
	if t.State() != want {
		return invalid(t, action, "transition not allowed from "+string(t.State()))
	}
	if !t.IsClaimedBy(actor.ID) {
		return denied(t, action, "only the claimer can change visibility")
	}
	t.Hidden = hidden
	out.mark(domain.ChangeTypeVisibility, map[string]any{"hidden": !hidden}, map[string]any{"hidden": hidden})
	out.PermissionsChanged = true
	return nil
}

func (m *Machine) shiftPriority(t *domain.Ticket, actor domain.Actor, delta int, out *Outcome) error {
	action := ActionPriorityUp
	if delta < 0 {
		action = ActionPriorityDown
	}
	if err := requireTeam(t, actor, action); err != nil {
		return err
	}
	old := t.Priority
	next := (old + domain.Priority(delta)).Clamp()
	if next == old {
		return nil
	}
	t.Priority = next
	out.mark(domain.ChangeTypePriority, map[string]any{"priority": int(old)}, map[string]any{"priority": int(next)})
	out.PermissionsChanged, out.NameChanged = true, true
	return nil
}

func (m *Machine) close(ctx context.Context, t *domain.Ticket, actor domain.Actor, args Args, policy domain.ClosePolicy, out *Outcome) error {
	if !actor.HasTeamCapability() {
		if actor.ID != t.CreatorID {
			return denied(t, ActionClose, "team capability required")
		}
		switch policy {
		case domain.ClosePolicyDirect:
		case domain.ClosePolicyApproval:
			if t.CloseRequest == nil {
				return denied(t, ActionClose, "no close request pending")
			}
			if m.approvals == nil || args.ApprovalToken == "" {
				return denied(t, ActionClose, "close approval required")
			}
			if err := m.approvals.VerifyCloseApproval(ctx, args.ApprovalToken, t, actor.ID); err != nil {
				return denied(t, ActionClose, "invalid close approval")
			}
		default:
			return denied(t, ActionClose, "creators cannot close tickets in this guild")
		}
	}
	now := m.now()
	old := t.Status
	closedBy := actor.ID
	t.Status = domain.TicketStatusClosed
	t.ClosedAt = &now
	t.ClosedBy = &closedBy
	t.CloseReason = strings.TrimSpace(args.Reason)
	out.mark(domain.ChangeTypeStatus, map[string]any{"status": old}, map[string]any{"status": t.Status, "reason": t.CloseReason})
	return nil
}

func (m *Machine) requestClose(t *domain.Ticket, actor domain.Actor, args Args, out *Outcome) error {
	if err := requireTeam(t, actor, ActionRequestClose); err != nil {
		return err
	}
	t.CloseRequest = &domain.CloseRequest{
		RequestedBy: actor.ID,
		Reason:      strings.TrimSpace(args.Reason),
		RequestedAt: m.now(),
	}
	out.mark(domain.ChangeTypeCloseReq, nil, map[string]any{"requested_by": actor.ID, "reason": t.CloseRequest.Reason})
	return nil
}

func (m *Machine) editUsers(t *domain.Ticket, actor domain.Actor, userID string, add bool, out *Outcome) error {
	action := ActionAddUser
	if !add {
		action = ActionRemoveUser
	}
	if !actor.HasTeamCapability() && !t.IsClaimedBy(actor.ID) {
		return denied(t, action, "team capability required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	var changed bool
	if add {
		t.AddedUsers, changed = domain.AddToSet(t.AddedUsers, userID)
	} else {
		if userID == t.CreatorID {
			return invalid(t, action, "the creator cannot be removed")
		}
		t.AddedUsers, changed = domain.RemoveFromSet(t.AddedUsers, userID)
	}
	if changed {
		out.mark(domain.ChangeTypeMembers, map[string]any{"user_id": userID, "added": !add}, map[string]any{"user_id": userID, "added": add})
		out.PermissionsChanged = true
	}
	return nil
}

func (m *Machine) addNote(t *domain.Ticket, actor domain.Actor, text string, out *Outcome) error {
	if err := requireTeam(t, actor, ActionAddNote); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.NewValidationError("text required", nil)
	}
	note := domain.Note{ID: m.newID(), AuthorID: actor.ID, Text: text, CreatedAt: m.now()}
	t.Notes = append(t.Notes, note)
	out.mark(domain.ChangeTypeNote, nil, map[string]any{"note_id": note.ID})
	return nil
}

func (m *Machine) editTags(t *domain.Ticket, actor domain.Actor, tag string, add bool, out *Outcome) error {
	action := ActionTag
	if !add {
		action = ActionUntag
	}
	if err := requireTeam(t, actor, action); err != nil {
		return err
	}
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return apperrors.NewValidationError("tag required", nil)
	}
	old := append([]string(nil), t.Tags...)
	var changed bool
	if add {
		t.Tags, changed = domain.AddToSet(t.Tags, tag)
	} else {
		t.Tags, changed = domain.RemoveFromSet(t.Tags, tag)
	}
	if changed {
		out.mark(domain.ChangeTypeTags, map[string]any{"tags": old}, map[string]any{"tags": t.Tags})
	}
	return nil
}

func (o *Outcome) mark(change domain.TicketChangeType, oldValue, newValue map[string]any) {
	o.Changed = true
	o.ChangeType = change
	o.OldValue = oldValue
	o.NewValue = newValue
}

func requireTeam(t *domain.Ticket, actor domain.Actor, action Action) error {
	if !actor.HasTeamCapability() {
		return denied(t, action, "team capability required")
	}
	return nil
}

func details(t *domain.Ticket, action Action) map[string]any {
	return map[string]any{
		"guild_id":  t.GuildID,
		"ticket_id": t.ID,
		"action":    string(action),
		"state":     string(t.State()),
	}
}

func denied(t *domain.Ticket, action Action, msg string) error {
	return apperrors.NewPermissionDenied(msg, details(t, action))
}

func invalid(t *domain.Ticket, action Action, msg string) error {
	return apperrors.NewInvalidState(msg, details(t, action))
}
