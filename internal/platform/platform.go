// Package platform talks to the chat platform that hosts ticket channels.
package platform

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// ErrThrottled is wrapped by adapter errors caused by platform rate limits.
var ErrThrottled = errors.New("platform: throttled")

// ErrUnknownChannel is returned for channels that do not exist.
var ErrUnknownChannel = errors.New("platform: unknown channel")

// ChannelSpec describes a channel to create.
type ChannelSpec struct {
	GuildID     string               `json:"guild_id"`
	Name        string               `json:"name"`
	CategoryRef string               `json:"category_ref,omitempty"`
	Permissions domain.PermissionSet `json:"permissions"`
}

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Message is an outbound chat message.
type Message struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Adapter is the set of platform operations the ticket core depends on.
type Adapter interface {
	CreateChannel(ctx context.Context, spec ChannelSpec) (channelRef string, err error)
	RenameChannel(ctx context.Context, channelRef, name string) error
	ChannelName(ctx context.Context, channelRef string) (string, error)
	DeleteChannel(ctx context.Context, channelRef string) error
	// ReplacePermissions swaps the complete overwrite list in one call.
	ReplacePermissions(ctx context.Context, channelRef string, perms domain.PermissionSet) error
	FetchRoster(ctx context.Context, guildID string) ([]domain.Member, error)
	SendMessage(ctx context.Context, channelRef string, msg Message) error
	SendDirect(ctx context.Context, userID string, msg Message) error
}
