package assignment

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

func member(id string, presence domain.Presence, roles ...string) domain.Member {
	if len(roles) == 0 {
		roles = []string{"support"}
	}
	return domain.Member{ID: id, Presence: presence, Roles: roles}
}

func claimed(by string, status domain.TicketStatus) domain.Ticket {
	id := by
	return domain.Ticket{ClaimerID: &id, Status: status}
}

func baseRequest(strategy domain.Strategy, roster ...domain.Member) Request {
	return Request{
		Config:    domain.AssignmentConfig{Enabled: true, Strategy: strategy},
		TeamRoles: []string{"support"},
		Roster:    roster,
	}
}

func TestRoundRobinPicksLeastRecent(t *testing.T) {
	req := baseRequest(domain.StrategyRoundRobin,
		member("A", domain.PresenceOnline),
		member("B", domain.PresenceOnline),
		member("C", domain.PresenceOnline),
	)
	req.Config.History = []domain.AssignmentRecord{{MemberID: "A"}, {MemberID: "B"}}

	got, ok := NewEngine(nil).Select(req)
	if !ok || got != "C" {
		t.Fatalf("Select() = %q, %v; want C", got, ok)
	}

	req.Config.History = append(req.Config.History, domain.AssignmentRecord{MemberID: "C"}, domain.AssignmentRecord{MemberID: "A"})
	got, _ = NewEngine(nil).Select(req)
	if got != "B" {
		t.Fatalf("Select() = %q; want B (last seen at index 1)", got)
	}
}

func TestRoundRobinTieUsesListOrder(t *testing.T) {
	req := baseRequest(domain.StrategyRoundRobin, member("X", ""), member("Y", ""))
	got, _ := NewEngine(nil).Select(req)
	if got != "X" {
		t.Fatalf("Select() = %q; want X", got)
	}
}

func TestWorkloadPicksFewestOpen(t *testing.T) {
	req := baseRequest(domain.StrategyWorkload,
		member("A", domain.PresenceOnline),
		member("B", domain.PresenceOnline),
		member("C", domain.PresenceOnline),
	)
	req.OpenTickets = []domain.Ticket{
		claimed("A", domain.TicketStatusOpen),
		claimed("A", domain.TicketStatusOpen),
		claimed("C", domain.TicketStatusOpen),
		claimed("B", domain.TicketStatusClosed),
	}
	got, ok := NewEngine(nil).Select(req)
	if !ok || got != "B" {
		t.Fatalf("Select() = %q, %v; want B", got, ok)
	}
}

func TestWorkloadIsDefault(t *testing.T) {
	req := baseRequest("", member("A", ""), member("B", ""))
	req.OpenTickets = []domain.Ticket{claimed("A", domain.TicketStatusOpen)}
	got, _ := NewEngine(nil).Select(req)
	if got != "B" {
		t.Fatalf("Select() = %q; want B", got)
	}
}

func TestPriorityQueueScoring(t *testing.T) {
	req := baseRequest(domain.StrategyPriorityQueue,
		member("busy-online", domain.PresenceOnline),
		member("free-idle", domain.PresenceIdle),
		member("free-offline", domain.PresenceOffline),
	)
	req.OpenTickets = []domain.Ticket{claimed("busy-online", domain.TicketStatusOpen)}

	// busy-online: 100-10+20 = 110; free-idle: 100+10 = 110; tie keeps list order.
	got, _ := NewEngine(nil).Select(req)
	if got != "busy-online" {
		t.Fatalf("Select() = %q; want busy-online", got)
	}

	// Urgent tickets favour members with no open work: free-idle scores 140.
	req.Priority = domain.PriorityHigh
	got, _ = NewEngine(nil).Select(req)
	if got != "free-idle" {
		t.Fatalf("Select() = %q; want free-idle", got)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		presence domain.Presence
		workload int
		priority domain.Priority
		want     int
	}{
		{domain.PresenceOnline, 0, domain.PriorityLow, 120},
		{domain.PresenceDND, 2, domain.PriorityLow, 90},
		{domain.PresenceOffline, 0, domain.PriorityHigh, 130},
		{domain.PresenceOnline, 1, domain.PriorityHigh, 110},
	}
	for _, tt := range tests {
		if got := Score(member("m", tt.presence), tt.workload, tt.priority); got != tt.want {
			t.Errorf("Score(%s, %d, %d) = %d, want %d", tt.presence, tt.workload, tt.priority, got, tt.want)
		}
	}
}

func TestRandomStaysWithinEligible(t *testing.T) {
	req := baseRequest(domain.StrategyRandom, member("A", ""), member("B", ""), domain.Member{ID: "bot", Bot: true, Roles: []string{"support"}})
	engine := NewEngine(rand.New(rand.NewPCG(1, 2)))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, ok := engine.Select(req)
		if !ok {
			t.Fatal("expected a pick")
		}
		seen[got] = true
	}
	if seen["bot"] {
		t.Fatal("bot account was selected")
	}
	if !seen["A"] || !seen["B"] {
		t.Fatalf("random strategy never picked some members: %v", seen)
	}
}

func TestEligibilityFilters(t *testing.T) {
	roster := []domain.Member{
		{ID: "bot", Bot: true, Roles: []string{"support"}, Presence: domain.PresenceOnline},
		{ID: "norole", Roles: []string{"member"}, Presence: domain.PresenceOnline},
		{ID: "excluded", Roles: []string{"support"}, Presence: domain.PresenceOnline},
		{ID: "noskill", Roles: []string{"support"}, Presence: domain.PresenceOnline},
		{ID: "offline", Roles: []string{"support", "billing"}, Presence: domain.PresenceOffline},
		{ID: "ok", Roles: []string{"support", "billing"}, Presence: domain.PresenceDND},
	}
	req := Request{
		Config: domain.AssignmentConfig{
			Enabled:              true,
			Strategy:             domain.StrategyWorkload,
			CheckOnlineStatus:    true,
			SkillBasedAssignment: true,
			TopicSkills:          map[string][]string{"billing": {"billing"}},
			ExcludedMembers:      []string{"excluded"},
		},
		TeamRoles: []string{"support"},
		Topic:     "billing",
		Roster:    roster,
	}
	got := Eligible(req)
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("Eligible() = %v; want [ok]", got)
	}

	// Topics without configured skills skip the skill filter.
	req.Topic = "general"
	got = Eligible(req)
	if len(got) != 2 {
		t.Fatalf("Eligible() for topic without skills = %v", got)
	}
}

func TestNoEligibleReturnsFalse(t *testing.T) {
	req := baseRequest(domain.StrategyWorkload, domain.Member{ID: "x", Roles: []string{"member"}})
	if got, ok := NewEngine(nil).Select(req); ok || got != "" {
		t.Fatalf("Select() = %q, %v; want no pick", got, ok)
	}
}

func TestRecordBoundsHistory(t *testing.T) {
	cfg := domain.AssignmentConfig{Strategy: domain.StrategyRoundRobin}
	at := time.Unix(0, 0)
	for i := 0; i < domain.AssignmentHistoryCapacity+5; i++ {
		id := "A"
		if i%2 == 1 {
			id = "B"
		}
		Record(&cfg, id, int64(i+1), at)
	}
	if len(cfg.History) != domain.AssignmentHistoryCapacity {
		t.Fatalf("history length = %d", len(cfg.History))
	}
	if cfg.History[0].TicketID != 6 {
		t.Fatalf("oldest entries not evicted first: first ticket = %d", cfg.History[0].TicketID)
	}
	if cfg.Stats.TotalAssignments != int64(domain.AssignmentHistoryCapacity+5) {
		t.Fatalf("total = %d", cfg.Stats.TotalAssignments)
	}
	if cfg.Stats.ByMember["A"]+cfg.Stats.ByMember["B"] != cfg.Stats.TotalAssignments {
		t.Fatalf("per-member counts %v do not sum to total", cfg.Stats.ByMember)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid after Record: %v", err)
	}
}
