package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// MemoryChannel is the recorded state of a channel on the in-memory platform.
type MemoryChannel struct {
	GuildID     string
	Name        string
	CategoryRef string
	Permissions domain.PermissionSet
	Messages    []Message
	Deleted     bool
}

// Memory is an in-process Adapter used for development and tests. Failures
// can be injected per operation.
type Memory struct {
	mu       sync.Mutex
	nextID   int
	channels map[string]*MemoryChannel
	rosters  map[string][]domain.Member
	direct   map[string][]Message
	fail     map[string]error
	calls    map[string]int
}

// NewMemory returns an empty platform.
func NewMemory() *Memory {
	return &Memory{
		channels: make(map[string]*MemoryChannel),
		rosters:  make(map[string][]domain.Member),
		direct:   make(map[string][]Message),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// SetRoster replaces the roster of a guild.
func (m *Memory) SetRoster(guildID string, members []domain.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters[guildID] = append([]domain.Member(nil), members...)
}

// SetFailure makes every call of op return err until cleared with a nil err.
func (m *Memory) SetFailure(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Calls reports how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Channel returns a copy of a channel's state.
func (m *Memory) Channel(ref string) (MemoryChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[ref]
	if !ok {
		return MemoryChannel{}, false
	}
	out := *ch
	out.Messages = append([]Message(nil), ch.Messages...)
	out.Permissions.Overwrites = append([]domain.Overwrite(nil), ch.Permissions.Overwrites...)
	return out, true
}

// DirectMessages returns the messages sent to a user.
func (m *Memory) DirectMessages(userID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.direct[userID]...)
}

func (m *Memory) enter(op string) error {
	m.calls[op]++
	return m.fail[op]
}

func (m *Memory) liveChannel(ref string) (*MemoryChannel, error) {
	ch, ok := m.channels[ref]
	if !ok || ch.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ref)
	}
	return ch, nil
}

func (m *Memory) CreateChannel(_ context.Context, spec ChannelSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateChannel"); err != nil {
		return "", err
	}
	m.nextID++
	ref := fmt.Sprintf("chan-%d", m.nextID)
	m.channels[ref] = &MemoryChannel{
		GuildID:     spec.GuildID,
		Name:        spec.Name,
		CategoryRef: spec.CategoryRef,
		Permissions: domain.PermissionSet{Overwrites: append([]domain.Overwrite(nil), spec.Permissions.Overwrites...)},
	}
	return ref, nil
}

func (m *Memory) RenameChannel(_ context.Context, ref, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RenameChannel"); err != nil {
		return err
	}
	ch, err := m.liveChannel(ref)
	if err != nil {
		return err
	}
	ch.Name = name
	return nil
}

func (m *Memory) ChannelName(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ChannelName"); err != nil {
		return "", err
	}
	ch, err := m.liveChannel(ref)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (m *Memory) DeleteChannel(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteChannel"); err != nil {
		return err
	}
	ch, err := m.liveChannel(ref)
	if err != nil {
		return err
	}
	ch.Deleted = true
	return nil
}

func (m *Memory) ReplacePermissions(_ context.Context, ref string, perms domain.PermissionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplacePermissions"); err != nil {
		return err
	}
	ch, err := m.liveChannel(ref)
	if err != nil {
		return err
	}
	ch.Permissions = domain.PermissionSet{Overwrites: append([]domain.Overwrite(nil), perms.Overwrites...)}
	return nil
}

func (m *Memory) FetchRoster(_ context.Context, guildID string) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FetchRoster"); err != nil {
		return nil, err
	}
	return append([]domain.Member(nil), m.rosters[guildID]...), nil
}

func (m *Memory) SendMessage(_ context.Context, ref string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SendMessage"); err != nil {
		return err
	}
	ch, err := m.liveChannel(ref)
	if err != nil {
		return err
	}
	ch.Messages = append(ch.Messages, msg)
	return nil
}

func (m *Memory) SendDirect(_ context.Context, userID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SendDirect"); err != nil {
		return err
	}
	m.direct[userID] = append(m.direct[userID], msg)
	return nil
}
