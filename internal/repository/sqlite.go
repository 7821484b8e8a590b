package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS guild_configs (
	guild_id       TEXT PRIMARY KEY,
	ticket_counter INTEGER NOT NULL DEFAULT 0,
	assignment     TEXT NOT NULL DEFAULT '{}',
	visibility     TEXT NOT NULL DEFAULT '{}',
	lifecycle      TEXT NOT NULL DEFAULT '{}',
	version        INTEGER NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
	guild_id      TEXT NOT NULL,
	id            INTEGER NOT NULL,
	channel_ref   TEXT NOT NULL DEFAULT '',
	topic         TEXT NOT NULL DEFAULT '',
	form_data     TEXT NOT NULL DEFAULT '{}',
	creator_id    TEXT NOT NULL,
	claimer_id    TEXT,
	priority      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	hidden        INTEGER NOT NULL DEFAULT 0,
	added_users   TEXT NOT NULL DEFAULT '[]',
	tags          TEXT NOT NULL DEFAULT '[]',
	notes         TEXT NOT NULL DEFAULT '[]',
	close_request TEXT,
	created_at    TEXT NOT NULL,
	claimed_at    TEXT,
	closed_at     TEXT,
	closed_by     TEXT,
	close_reason  TEXT NOT NULL DEFAULT '',
	version       INTEGER NOT NULL,
	PRIMARY KEY (guild_id, id)
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(guild_id, status);

CREATE TABLE IF NOT EXISTS ticket_history (
	id            TEXT PRIMARY KEY,
	guild_id      TEXT NOT NULL,
	ticket_id     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	changed_by_id TEXT NOT NULL,
	change_type   TEXT NOT NULL,
	old_value     TEXT,
	new_value     TEXT,
	created_at    TEXT NOT NULL,
	seq           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_ticket ON ticket_history(guild_id, ticket_id, seq);
`

const sqliteTicketColumns = `guild_id, id, channel_ref, topic, form_data, creator_id, claimer_id, priority, status, hidden,
	added_users, tags, notes, close_request, created_at, claimed_at, closed_at, closed_by, close_reason, version`

// SQLite is a single-node Store backed by an embedded database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// One writer keeps version checks and the WAL simple.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: wal: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) GetTicket(ctx context.Context, guildID string, id int64) (*domain.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteTicketColumns+` FROM tickets WHERE guild_id = ? AND id = ?`, guildID, id)
	t, err := scanSQLiteTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get ticket: %w", err)
	}
	return t, nil
}

func (s *SQLite) ListTickets(ctx context.Context, guildID string, filter TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + sqliteTicketColumns + ` FROM tickets WHERE guild_id = ?`
	args := []any{guildID}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.ClaimerID != "" {
		query += " AND claimer_id = ?"
		args = append(args, filter.ClaimerID)
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list tickets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: list scan: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLite) PutTicket(ctx context.Context, t *domain.Ticket) error {
	docs, err := encodeTicketDocs(t)
	if err != nil {
		return err
	}
	var res sql.Result
	if t.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO tickets (`+sqliteTicketColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(guild_id, id) DO NOTHING`,
			t.GuildID, t.ID, t.ChannelRef, t.Topic, string(docs.FormData), t.CreatorID, t.ClaimerID,
			int(t.Priority), string(t.Status), t.Hidden, string(docs.AddedUsers), string(docs.Tags),
			string(docs.Notes), nullableText(docs.CloseRequest), formatTime(t.CreatedAt),
			formatTimePtr(t.ClaimedAt), formatTimePtr(t.ClosedAt), t.ClosedBy, t.CloseReason,
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE tickets SET channel_ref = ?, topic = ?, form_data = ?, claimer_id = ?, priority = ?, status = ?,
				hidden = ?, added_users = ?, tags = ?, notes = ?, close_request = ?, claimed_at = ?, closed_at = ?,
				closed_by = ?, close_reason = ?, version = version + 1
			WHERE guild_id = ? AND id = ? AND version = ?`,
			t.ChannelRef, t.Topic, string(docs.FormData), t.ClaimerID, int(t.Priority), string(t.Status),
			t.Hidden, string(docs.AddedUsers), string(docs.Tags), string(docs.Notes),
			nullableText(docs.CloseRequest), formatTimePtr(t.ClaimedAt), formatTimePtr(t.ClosedAt),
			t.ClosedBy, t.CloseReason, t.GuildID, t.ID, t.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite store: put ticket: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	t.Version++
	return nil
}

func (s *SQLite) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	var (
		cfg       domain.GuildConfig
		docs      guildDocs
		a, v, l   string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT guild_id, ticket_counter, assignment, visibility, lifecycle, version, updated_at
		FROM guild_configs WHERE guild_id = ?`, guildID,
	).Scan(&cfg.GuildID, &cfg.TicketCounter, &a, &v, &l, &cfg.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get guild config: %w", err)
	}
	docs.Assignment, docs.Visibility, docs.Lifecycle = []byte(a), []byte(v), []byte(l)
	if err := docs.decodeInto(&cfg); err != nil {
		return nil, err
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *SQLite) PutGuildConfig(ctx context.Context, cfg *domain.GuildConfig) error {
	docs, err := encodeGuildDocs(cfg)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	var res sql.Result
	if cfg.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO guild_configs (guild_id, ticket_counter, assignment, visibility, lifecycle, version, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?)
			ON CONFLICT(guild_id) DO NOTHING`,
			cfg.GuildID, cfg.TicketCounter, string(docs.Assignment), string(docs.Visibility),
			string(docs.Lifecycle), formatTime(now),
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE guild_configs SET ticket_counter = ?, assignment = ?, visibility = ?, lifecycle = ?,
				version = version + 1, updated_at = ?
			WHERE guild_id = ? AND version = ?`,
			cfg.TicketCounter, string(docs.Assignment), string(docs.Visibility), string(docs.Lifecycle),
			formatTime(now), cfg.GuildID, cfg.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite store: put guild config: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	cfg.Version++
	cfg.UpdatedAt = now
	return nil
}

func (s *SQLite) AppendHistory(ctx context.Context, entry *domain.TicketHistory) error {
	oldValue, err := marshalOr(entry.OldValue, "null")
	if err != nil {
		return err
	}
	newValue, err := marshalOr(entry.NewValue, "null")
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticket_history (id, guild_id, ticket_id, action, changed_by_id, change_type, old_value, new_value, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM ticket_history WHERE guild_id = ? AND ticket_id = ?))`,
		entry.ID, entry.GuildID, entry.TicketID, entry.Action, entry.ChangedByID, string(entry.ChangeType),
		string(oldValue), string(newValue), formatTime(entry.CreatedAt), entry.GuildID, entry.TicketID,
	)
	if err != nil {
		return fmt.Errorf("sqlite store: append history: %w", err)
	}
	return nil
}

func (s *SQLite) ListHistory(ctx context.Context, guildID string, ticketID int64) ([]domain.TicketHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, ticket_id, action, changed_by_id, change_type, old_value, new_value, created_at
		FROM ticket_history WHERE guild_id = ? AND ticket_id = ? ORDER BY seq ASC`, guildID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list history: %w", err)
	}
	defer rows.Close()

	var out []domain.TicketHistory
	for rows.Next() {
		var (
			h                  domain.TicketHistory
			changeType         string
			oldValue, newValue sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&h.ID, &h.GuildID, &h.TicketID, &h.Action, &h.ChangedByID, &changeType,
			&oldValue, &newValue, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite store: history scan: %w", err)
		}
		h.ChangeType = domain.TicketChangeType(changeType)
		if err := decodeValues([]byte(oldValue.String), []byte(newValue.String), &h); err != nil {
			return nil, err
		}
		if h.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t                            domain.Ticket
		status                       string
		priority                     int
		formData, added, tags, notes string
		closeRequest                 sql.NullString
		createdAt                    string
		claimedAt, closedAt          sql.NullString
		claimerID, closedBy          sql.NullString
	)
	if err := row.Scan(&t.GuildID, &t.ID, &t.ChannelRef, &t.Topic, &formData, &t.CreatorID, &claimerID,
		&priority, &status, &t.Hidden, &added, &tags, &notes, &closeRequest, &createdAt, &claimedAt,
		&closedAt, &closedBy, &t.CloseReason, &t.Version); err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	t.Priority = domain.Priority(priority)
	t.ClaimerID = nullString(claimerID)
	t.ClosedBy = nullString(closedBy)

	docs := ticketDocs{
		FormData:   []byte(formData),
		AddedUsers: []byte(added),
		Tags:       []byte(tags),
		Notes:      []byte(notes),
	}
	if closeRequest.Valid {
		docs.CloseRequest = []byte(closeRequest.String)
	}
	if err := docs.decodeInto(&t); err != nil {
		return nil, err
	}

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.ClaimedAt, err = parseTimePtr(claimedAt); err != nil {
		return nil, err
	}
	if t.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func nullableText(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite store: parse time %q: %w", v, err)
	}
	return t, nil
}

func parseTimePtr(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
