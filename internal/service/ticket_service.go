package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/access"
	"github.com/spec-kit/ticket-channels/internal/assignment"
	"github.com/spec-kit/ticket-channels/internal/clock"
	"github.com/spec-kit/ticket-channels/internal/domain"
	"github.com/spec-kit/ticket-channels/internal/events"
	"github.com/spec-kit/ticket-channels/internal/keylock"
	"github.com/spec-kit/ticket-channels/internal/lifecycle"
	"github.com/spec-kit/ticket-channels/internal/observability"
	"github.com/spec-kit/ticket-channels/internal/platform"
	"github.com/spec-kit/ticket-channels/internal/repository"
	"github.com/spec-kit/ticket-channels/internal/transcript"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// RenameScheduler is the part of the rename limiter the services use.
type RenameScheduler interface {
	Schedule(channelRef, desiredName string)
	Forget(channelRef string)
}

// ApprovalIssuer signs close approvals for ticket creators.
type ApprovalIssuer interface {
	Issue(t *domain.Ticket, requestedBy string) (string, time.Time, error)
}

// TicketService coordinates ticket workflows: every mutation runs under the
// ticket's lock and follows read, validate, mutate, replace permissions,
// persist, schedule rename, publish.
type TicketService struct {
	store       repository.Store
	platform    platform.Adapter
	locker      keylock.Locker
	machine     *lifecycle.Machine
	engine      *assignment.Engine
	renames     RenameScheduler
	approvals   ApprovalIssuer
	transcripts transcript.Generator
	dispatcher  events.Dispatcher
	clock       clock.Clock
	metrics     *observability.Metrics
	logger      *zap.Logger

	followups sync.WaitGroup
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store       repository.Store
	Platform    platform.Adapter
	Locker      keylock.Locker
	Machine     *lifecycle.Machine
	Engine      *assignment.Engine
	Renames     RenameScheduler
	Approvals   ApprovalIssuer
	Transcripts transcript.Generator
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Topic    string
	FormData map[string]string
	Priority domain.Priority
}

// AssigneePreview is the result of a side-effect free assignment run.
type AssigneePreview struct {
	MemberID string
	Picked   bool
	Enabled  bool
	Strategy domain.Strategy
	Eligible []string
}

// NewTicketService constructs the service. Missing optional collaborators
// get working defaults.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Locker == nil {
		deps.Locker = keylock.NewLocal()
	}
	if deps.Engine == nil {
		deps.Engine = assignment.NewEngine(nil)
	}
	if deps.Machine == nil {
		var verifier lifecycle.ApprovalVerifier
		if v, ok := deps.Approvals.(lifecycle.ApprovalVerifier); ok {
			verifier = v
		}
		deps.Machine = lifecycle.NewMachine(verifier, deps.Clock.Now)
	}
	if deps.Transcripts == nil {
		deps.Transcripts = transcript.NewTextGenerator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		store:       deps.Store,
		platform:    deps.Platform,
		locker:      deps.Locker,
		machine:     deps.Machine,
		engine:      deps.Engine,
		renames:     deps.Renames,
		approvals:   deps.Approvals,
		transcripts: deps.Transcripts,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// CreateTicket opens a ticket channel for actor. When assignment is enabled
// for the guild and picks a member, the ticket is claimed on their behalf
// before the channel is created, so the channel starts with its final name
// and permissions.
func (s *TicketService) CreateTicket(ctx context.Context, guildID string, input TicketCreateInput, actor domain.Actor) (*domain.Ticket, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.CreateTicket",
		trace.WithAttributes(attribute.String("guild_id", guildID)))
	defer span.End()

	if strings.TrimSpace(guildID) == "" || actor.ID == "" {
		return nil, apperrors.NewValidationError("guild and actor are required", nil)
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("priority out of range", map[string]any{"priority": int(input.Priority)})
	}

	unlock, err := s.locker.Lock(ctx, keylock.GuildKey(guildID))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	res, err := s.createLocked(ctx, guildID, input, actor)
	unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ticket := res.ticket
	span.SetAttributes(attribute.Int64("ticket_id", ticket.ID))

	s.recordHistory(ctx, ticket, "create", actor.ID, domain.ChangeTypeCreated, nil, map[string]any{
		"topic":    ticket.Topic,
		"priority": int(ticket.Priority),
	})
	s.metrics.RecordTransition("create")
	s.publish(ctx, events.EventTicketCreated, ticket, actor, events.TicketCreatedPayload{
		Topic:      ticket.Topic,
		Priority:   ticket.Priority,
		ChannelRef: ticket.ChannelRef,
	})
	if res.picked != "" {
		claimer := domain.SystemActor(res.picked)
		s.recordHistory(ctx, ticket, string(lifecycle.ActionClaim), res.picked, res.claim.ChangeType, res.claim.OldValue, res.claim.NewValue)
		s.metrics.RecordTransition(string(lifecycle.ActionClaim))
		s.publish(ctx, events.EventTicketAssigned, ticket, claimer, events.TicketAssignedPayload{
			MemberID: res.picked,
			Strategy: res.strategy,
		})
		s.publish(ctx, events.EventTicketClaimed, ticket, claimer, nil)
	}
	return ticket.Clone(), nil
}

type createResult struct {
	ticket   *domain.Ticket
	picked   string
	strategy domain.Strategy
	claim    lifecycle.Outcome
}

func (s *TicketService) createLocked(ctx context.Context, guildID string, input TicketCreateInput, actor domain.Actor) (createResult, error) {
	var res createResult
	cfg, err := s.loadConfig(ctx, guildID)
	if err != nil {
		return res, err
	}

	id, err := s.nextTicketID(ctx, cfg)
	if err != nil {
		return res, err
	}
	ticket := &domain.Ticket{
		GuildID:   guildID,
		ID:        id,
		Topic:     strings.TrimSpace(input.Topic),
		FormData:  input.FormData,
		CreatorID: actor.ID,
		Priority:  input.Priority,
		Status:    domain.TicketStatusOpen,
		CreatedAt: s.clock.Now().UTC(),
	}

	var picked string
	if cfg.Assignment.Enabled && cfg.Assignment.AssignOnCreate {
		picked = s.pickAssignee(ctx, cfg, ticket)
	}
	if picked != "" {
		res.claim, err = s.machine.Apply(ctx, ticket, lifecycle.ActionClaim, domain.SystemActor(picked), lifecycle.Args{}, cfg.Lifecycle.CreatorClose)
		if err != nil {
			s.logger.Warn("auto-claim rejected",
				zap.String("guild_id", guildID),
				zap.String("member_id", picked),
				zap.Error(err))
			picked = ""
		} else {
			assignment.Record(&cfg.Assignment, picked, ticket.ID, ticket.CreatedAt)
		}
	}

	ref, err := s.platform.CreateChannel(ctx, platform.ChannelSpec{
		GuildID:     guildID,
		Name:        lifecycle.ChannelName(ticket),
		CategoryRef: cfg.Lifecycle.CategoryRef,
		Permissions: access.Resolve(ticket, cfg.Visibility),
	})
	if err != nil {
		s.metrics.RecordExternalFailure("CreateChannel")
		return res, apperrors.NewExternalFailure("CreateChannel", err)
	}
	ticket.ChannelRef = ref

	if err := s.store.PutTicket(ctx, ticket); err != nil {
		s.discardChannel(ctx, ref)
		return res, mapStoreError(err, "ticket", ticketDetails(ticket))
	}

	// The ticket exists from here on. A failed config write loses the
	// counter bump and assignment stats; nextTicketID skips ids already
	// taken, so later creates still succeed.
	cfg.UpdatedAt = ticket.CreatedAt
	if err := s.store.PutGuildConfig(ctx, cfg); err != nil {
		s.logger.Error("guild config not updated after ticket create",
			zap.String("guild_id", guildID),
			zap.Int64("ticket_id", ticket.ID),
			zap.Error(err))
	}
	res.ticket, res.picked, res.strategy = ticket, picked, cfg.Assignment.Strategy
	return res, nil
}

// nextTicketID bumps the guild counter past any id already present in the
// store.
func (s *TicketService) nextTicketID(ctx context.Context, cfg *domain.GuildConfig) (int64, error) {
	for {
		cfg.TicketCounter++
		_, err := s.store.GetTicket(ctx, cfg.GuildID, cfg.TicketCounter)
		if errors.Is(err, repository.ErrNotFound) {
			return cfg.TicketCounter, nil
		}
		if err != nil {
			return 0, apperrors.MapError(err)
		}
		s.logger.Warn("ticket counter behind store; skipping id",
			zap.String("guild_id", cfg.GuildID),
			zap.Int64("ticket_id", cfg.TicketCounter))
	}
}

// pickAssignee runs the engine against the live roster. Roster or store
// failures leave the ticket unassigned.
func (s *TicketService) pickAssignee(ctx context.Context, cfg *domain.GuildConfig, t *domain.Ticket) string {
	req, err := s.assignmentRequest(ctx, cfg, t.Topic, t.Priority)
	if err != nil {
		s.logger.Warn("assignment skipped", zap.String("guild_id", t.GuildID), zap.Error(err))
		s.metrics.RecordAssignment(string(cfg.Assignment.Strategy), false)
		return ""
	}
	member, ok := s.engine.Select(req)
	s.metrics.RecordAssignment(string(cfg.Assignment.Strategy), ok)
	return member
}

func (s *TicketService) assignmentRequest(ctx context.Context, cfg *domain.GuildConfig, topic string, priority domain.Priority) (assignment.Request, error) {
	roster, err := s.platform.FetchRoster(ctx, cfg.GuildID)
	if err != nil {
		s.metrics.RecordExternalFailure("FetchRoster")
		return assignment.Request{}, err
	}
	open := domain.TicketStatusOpen
	tickets, err := s.store.ListTickets(ctx, cfg.GuildID, repository.TicketFilter{Status: &open})
	if err != nil {
		return assignment.Request{}, err
	}
	return assignment.Request{
		Config:      cfg.Assignment,
		TeamRoles:   cfg.Visibility.TeamRoles(),
		Topic:       topic,
		Priority:    priority,
		Roster:      roster,
		OpenTickets: tickets,
	}, nil
}

// PreviewAssignee runs the assignment engine without recording anything.
// It ignores the enabled switch so administrators can try a configuration
// before turning it on.
func (s *TicketService) PreviewAssignee(ctx context.Context, guildID, topic string, priority domain.Priority) (*AssigneePreview, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("priority out of range", map[string]any{"priority": int(priority)})
	}
	cfg, err := s.loadConfig(ctx, guildID)
	if err != nil {
		return nil, err
	}
	req, err := s.assignmentRequest(ctx, cfg, strings.TrimSpace(topic), priority)
	if err != nil {
		return nil, apperrors.NewExternalFailure("FetchRoster", err)
	}

	preview := &AssigneePreview{
		Enabled:  cfg.Assignment.Enabled && cfg.Assignment.AssignOnCreate,
		Strategy: cfg.Assignment.Strategy,
	}
	for _, m := range assignment.Eligible(req) {
		preview.Eligible = append(preview.Eligible, m.ID)
	}
	preview.MemberID, preview.Picked = s.engine.Select(req)
	return preview, nil
}

// Transition applies action to a ticket. A transition that changes nothing
// (priority already at a bound, re-adding a tag) succeeds without a write.
func (s *TicketService) Transition(ctx context.Context, guildID string, ticketID int64, action lifecycle.Action, actor domain.Actor, args lifecycle.Args) (*domain.Ticket, lifecycle.Outcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "TicketService.Transition", trace.WithAttributes(
		attribute.String("guild_id", guildID),
		attribute.Int64("ticket_id", ticketID),
		attribute.String("action", string(action)),
	))
	defer span.End()

	unlock, err := s.locker.Lock(ctx, keylock.TicketKey(guildID, ticketID))
	if err != nil {
		return nil, lifecycle.Outcome{Action: action}, apperrors.MapError(err)
	}
	ticket, cfg, out, err := s.transitionLocked(ctx, guildID, ticketID, action, actor, args)
	unlock()
	if err != nil {
		code := apperrors.ToDomainError(err).Code
		s.metrics.RecordRejection(string(action), code)
		span.SetStatus(codes.Error, code)
		return nil, out, err
	}
	if !out.Changed {
		return ticket, out, nil
	}
	s.metrics.RecordTransition(string(action))

	if out.NameChanged && s.renames != nil {
		s.renames.Schedule(ticket.ChannelRef, lifecycle.ChannelName(ticket))
	}
	s.recordHistory(ctx, ticket, string(action), actor.ID, out.ChangeType, out.OldValue, out.NewValue)
	s.afterTransition(ctx, ticket, cfg, actor, out)
	return ticket.Clone(), out, nil
}

func (s *TicketService) transitionLocked(ctx context.Context, guildID string, ticketID int64, action lifecycle.Action, actor domain.Actor, args lifecycle.Args) (*domain.Ticket, *domain.GuildConfig, lifecycle.Outcome, error) {
	out := lifecycle.Outcome{Action: action}
	current, err := s.store.GetTicket(ctx, guildID, ticketID)
	if err != nil {
		return nil, nil, out, mapStoreError(err, "ticket", map[string]any{"guild_id": guildID, "ticket_id": ticketID})
	}
	cfg, err := s.loadConfig(ctx, guildID)
	if err != nil {
		return nil, nil, out, err
	}

	next := current.Clone()
	out, err = s.machine.Apply(ctx, next, action, actor, args, cfg.Lifecycle.CreatorClose)
	if err != nil {
		return nil, nil, out, err
	}
	if !out.Changed {
		return current, cfg, out, nil
	}

	if out.PermissionsChanged {
		if err := s.platform.ReplacePermissions(ctx, next.ChannelRef, access.Resolve(next, cfg.Visibility)); err != nil {
			s.metrics.RecordExternalFailure("ReplacePermissions")
			return nil, nil, out, apperrors.NewExternalFailure("ReplacePermissions", err)
		}
	}
	if err := s.store.PutTicket(ctx, next); err != nil {
		if out.PermissionsChanged {
			s.restorePermissions(ctx, current, cfg)
		}
		return nil, nil, out, mapStoreError(err, "ticket", ticketDetails(current))
	}
	return next, cfg, out, nil
}

// afterTransition runs the post-persistence steps. Nothing here rolls back
// the persisted change.
func (s *TicketService) afterTransition(ctx context.Context, t *domain.Ticket, cfg *domain.GuildConfig, actor domain.Actor, out lifecycle.Outcome) {
	switch out.Action {
	case lifecycle.ActionClaim:
		s.publish(ctx, events.EventTicketClaimed, t, actor, nil)
	case lifecycle.ActionUnclaim:
		s.publish(ctx, events.EventTicketUnclaimed, t, actor, nil)
	case lifecycle.ActionHide, lifecycle.ActionUnhide:
		s.publish(ctx, events.EventTicketVisibilityChanged, t, actor, nil)
	case lifecycle.ActionPriorityUp, lifecycle.ActionPriorityDown:
		old, _ := out.OldValue["priority"].(int)
		s.publish(ctx, events.EventTicketPriorityChanged, t, actor, events.TicketPriorityChangedPayload{
			OldPriority: domain.Priority(old),
			NewPriority: t.Priority,
		})
	case lifecycle.ActionAddUser, lifecycle.ActionRemoveUser:
		s.publish(ctx, events.EventTicketMembersChanged, t, actor, nil)
	case lifecycle.ActionRequestClose:
		s.publishCloseRequest(ctx, t, actor)
	case lifecycle.ActionClose:
		s.publish(ctx, events.EventTicketClosed, t, actor, events.TicketClosedPayload{
			ClosedBy: actor.ID,
			Reason:   t.CloseReason,
		})
		s.startTeardown(t.Clone(), cfg.Lifecycle)
	}
}

func (s *TicketService) publishCloseRequest(ctx context.Context, t *domain.Ticket, actor domain.Actor) {
	payload := events.TicketCloseRequestedPayload{
		RequestedBy: t.CloseRequest.RequestedBy,
		Reason:      t.CloseRequest.Reason,
	}
	if s.approvals != nil {
		token, exp, err := s.approvals.Issue(t, t.CloseRequest.RequestedBy)
		if err != nil {
			s.logger.Error("issue close approval failed", zap.String("guild_id", t.GuildID), zap.Int64("ticket_id", t.ID), zap.Error(err))
		} else {
			payload.Token, payload.ExpiresAt = token, exp
		}
	}
	s.publish(ctx, events.EventTicketCloseRequested, t, actor, payload)
}

// startTeardown posts the transcript in the background and deletes the
// channel once the guild's grace period has elapsed.
func (s *TicketService) startTeardown(t *domain.Ticket, policy domain.LifecyclePolicy) {
	s.followups.Add(1)
	go func() {
		defer s.followups.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.postTranscript(ctx, t, policy.TranscriptChannel)
	}()

	grace := policy.TeardownGrace
	if grace <= 0 {
		grace = domain.DefaultTeardownGrace
	}
	s.followups.Add(1)
	s.clock.AfterFunc(grace, func() {
		defer s.followups.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if s.renames != nil {
			s.renames.Forget(t.ChannelRef)
		}
		if err := s.platform.DeleteChannel(ctx, t.ChannelRef); err != nil && !errors.Is(err, platform.ErrUnknownChannel) {
			s.metrics.RecordExternalFailure("DeleteChannel")
			s.logger.Warn("channel teardown failed",
				zap.String("guild_id", t.GuildID),
				zap.Int64("ticket_id", t.ID),
				zap.String("channel_ref", t.ChannelRef),
				zap.Error(err))
		}
	})
}

func (s *TicketService) postTranscript(ctx context.Context, t *domain.Ticket, channelRef string) {
	doc, err := s.transcripts.Generate(ctx, t.ChannelRef, t)
	if err != nil {
		s.logger.Warn("transcript generation failed", zap.String("guild_id", t.GuildID), zap.Int64("ticket_id", t.ID), zap.Error(err))
		return
	}
	s.recordHistory(ctx, t, "transcript", "", domain.ChangeTypeStatus, nil, map[string]any{
		"transcript_digest": doc.Digest,
	})
	if channelRef == "" {
		return
	}
	msg := platform.Message{
		Content: "Transcript for ticket #" + padID(t.ID),
		Attachments: []platform.Attachment{{
			Filename:    doc.Filename,
			ContentType: doc.ContentType,
			Data:        doc.Body,
		}},
	}
	if err := s.platform.SendMessage(ctx, channelRef, msg); err != nil {
		s.metrics.RecordExternalFailure("SendMessage")
		s.logger.Warn("transcript delivery failed", zap.String("channel_ref", channelRef), zap.Error(err))
	}
}

// Wait blocks until background follow-ups (transcripts and pending
// teardowns) have finished.
func (s *TicketService) Wait() {
	s.followups.Wait()
}

// GetTicket returns one ticket.
func (s *TicketService) GetTicket(ctx context.Context, guildID string, ticketID int64) (*domain.Ticket, error) {
	t, err := s.store.GetTicket(ctx, guildID, ticketID)
	if err != nil {
		return nil, mapStoreError(err, "ticket", map[string]any{"guild_id": guildID, "ticket_id": ticketID})
	}
	return t, nil
}

// ListTickets lists tickets of a guild ordered by id.
func (s *TicketService) ListTickets(ctx context.Context, guildID string, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperrors.NewValidationError("limit and offset must not be negative", nil)
	}
	tickets, err := s.store.ListTickets(ctx, guildID, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListHistory returns the audit trail of a ticket.
func (s *TicketService) ListHistory(ctx context.Context, guildID string, ticketID int64) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, guildID, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, guildID, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) loadConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	return loadGuildConfig(ctx, s.store, guildID)
}

func (s *TicketService) restorePermissions(ctx context.Context, t *domain.Ticket, cfg *domain.GuildConfig) {
	if err := s.platform.ReplacePermissions(ctx, t.ChannelRef, access.Resolve(t, cfg.Visibility)); err != nil {
		s.logger.Error("restore permissions failed",
			zap.String("guild_id", t.GuildID),
			zap.Int64("ticket_id", t.ID),
			zap.Error(err))
	}
}

func (s *TicketService) discardChannel(ctx context.Context, ref string) {
	if err := s.platform.DeleteChannel(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Warn("discard channel failed", zap.String("channel_ref", ref), zap.Error(err))
	}
}

func (s *TicketService) recordHistory(ctx context.Context, t *domain.Ticket, action, actorID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	entry := &domain.TicketHistory{
		ID:          uuid.NewString(),
		GuildID:     t.GuildID,
		TicketID:    t.ID,
		Action:      action,
		ChangedByID: actorID,
		ChangeType:  change,
		OldValue:    oldValue,
		NewValue:    newValue,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.store.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("append history failed",
			zap.String("guild_id", t.GuildID),
			zap.Int64("ticket_id", t.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, t *domain.Ticket, actor domain.Actor, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		GuildID:   t.GuildID,
		TicketID:  t.ID,
		Actor:     actor,
		Timestamp: s.clock.Now().UTC(),
		Ticket:    t.Clone(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func ticketDetails(t *domain.Ticket) map[string]any {
	return map[string]any{"guild_id": t.GuildID, "ticket_id": t.ID}
}

func padID(id int64) string {
	return fmt.Sprintf("%04d", id)
}
