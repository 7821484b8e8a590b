package repository

import (
	"encoding/json"
	"fmt"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// ticketDocs holds the JSON-encoded columns of a ticket row. Both SQL
// backends store sets and logs as JSON documents.
type ticketDocs struct {
	FormData     []byte
	AddedUsers   []byte
	Tags         []byte
	Notes        []byte
	CloseRequest []byte
}

func encodeTicketDocs(t *domain.Ticket) (ticketDocs, error) {
	var (
		docs ticketDocs
		err  error
	)
	if docs.FormData, err = marshalOr(t.FormData, "{}"); err != nil {
		return docs, err
	}
	if docs.AddedUsers, err = marshalOr(t.AddedUsers, "[]"); err != nil {
		return docs, err
	}
	if docs.Tags, err = marshalOr(t.Tags, "[]"); err != nil {
		return docs, err
	}
	if docs.Notes, err = marshalOr(t.Notes, "[]"); err != nil {
		return docs, err
	}
	if t.CloseRequest != nil {
		if docs.CloseRequest, err = json.Marshal(t.CloseRequest); err != nil {
			return docs, fmt.Errorf("encode close request: %w", err)
		}
	}
	return docs, nil
}

func (d ticketDocs) decodeInto(t *domain.Ticket) error {
	fields := []struct {
		raw  []byte
		dest any
		name string
	}{
		{d.FormData, &t.FormData, "form_data"},
		{d.AddedUsers, &t.AddedUsers, "added_users"},
		{d.Tags, &t.Tags, "tags"},
		{d.Notes, &t.Notes, "notes"},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	if len(d.CloseRequest) > 0 && string(d.CloseRequest) != "null" {
		t.CloseRequest = &domain.CloseRequest{}
		if err := json.Unmarshal(d.CloseRequest, t.CloseRequest); err != nil {
			return fmt.Errorf("decode close_request: %w", err)
		}
	}
	t.AddedUsers = domain.NormalizeSet(t.AddedUsers)
	t.Tags = domain.NormalizeSet(t.Tags)
	return nil
}

// guildDocs holds the JSON-encoded sections of a guild config row.
type guildDocs struct {
	Assignment []byte
	Visibility []byte
	Lifecycle  []byte
}

func encodeGuildDocs(cfg *domain.GuildConfig) (guildDocs, error) {
	var (
		docs guildDocs
		err  error
	)
	if docs.Assignment, err = json.Marshal(cfg.Assignment); err != nil {
		return docs, fmt.Errorf("encode assignment: %w", err)
	}
	if docs.Visibility, err = json.Marshal(cfg.Visibility); err != nil {
		return docs, fmt.Errorf("encode visibility: %w", err)
	}
	if docs.Lifecycle, err = json.Marshal(cfg.Lifecycle); err != nil {
		return docs, fmt.Errorf("encode lifecycle: %w", err)
	}
	return docs, nil
}

func (d guildDocs) decodeInto(cfg *domain.GuildConfig) error {
	if err := json.Unmarshal(d.Assignment, &cfg.Assignment); err != nil {
		return fmt.Errorf("decode assignment: %w", err)
	}
	if err := json.Unmarshal(d.Visibility, &cfg.Visibility); err != nil {
		return fmt.Errorf("decode visibility: %w", err)
	}
	if err := json.Unmarshal(d.Lifecycle, &cfg.Lifecycle); err != nil {
		return fmt.Errorf("decode lifecycle: %w", err)
	}
	cfg.ApplyDefaults()
	return nil
}

func marshalOr(v any, empty string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte(empty), nil
	}
	return raw, nil
}
