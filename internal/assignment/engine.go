// Package assignment picks a responder for a newly created ticket.
package assignment

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// Presence bonuses used by the priority queue strategy.
const (
	onlineBonus    = 20
	idleBonus      = 10
	baseScore      = 100
	workloadWeight = 10
	urgentIdleBump = 30
)

// Request carries everything a selection needs. It is never mutated.
type Request struct {
	Config      domain.AssignmentConfig
	TeamRoles   []string
	Topic       string
	Priority    domain.Priority
	Roster      []domain.Member
	OpenTickets []domain.Ticket
}

// Engine selects assignees. The zero value is not usable; call NewEngine.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine builds an engine. A nil rng falls back to a randomly seeded source.
func NewEngine(rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Engine{rng: rng}
}

// Select returns the chosen member id, or false when nobody is eligible.
// It never fails and has no side effects.
func (e *Engine) Select(req Request) (string, bool) {
	eligible := Eligible(req)
	if len(eligible) == 0 {
		return "", false
	}

	switch req.Config.Strategy {
	case domain.StrategyRoundRobin:
		return roundRobin(eligible, req.Config.History), true
	case domain.StrategyRandom:
		e.mu.Lock()
		idx := e.rng.IntN(len(eligible))
		e.mu.Unlock()
		return eligible[idx].ID, true
	case domain.StrategyPriorityQueue:
		return priorityQueue(eligible, req.OpenTickets, req.Priority), true
	default:
		return leastLoaded(eligible, req.OpenTickets), true
	}
}

// Eligible applies the filter chain in order and returns the remaining
// members in roster order.
func Eligible(req Request) []domain.Member {
	cfg := req.Config
	skills := cfg.TopicSkills[req.Topic]

	out := make([]domain.Member, 0, len(req.Roster))
	for _, m := range req.Roster {
		if m.Bot {
			continue
		}
		if !m.HasAnyRole(req.TeamRoles) {
			continue
		}
		if domain.Contains(cfg.ExcludedMembers, m.ID) {
			continue
		}
		if cfg.SkillBasedAssignment && len(skills) > 0 && !m.HasAnyRole(skills) {
			continue
		}
		if cfg.CheckOnlineStatus && !m.Presence.Available() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Record applies a successful pick to the configuration: the history is
// appended (oldest evicted beyond capacity) and the counters are bumped.
func Record(cfg *domain.AssignmentConfig, memberID string, ticketID int64, at time.Time) {
	cfg.History = append(cfg.History, domain.AssignmentRecord{MemberID: memberID, TicketID: ticketID, AssignedAt: at})
	if over := len(cfg.History) - domain.AssignmentHistoryCapacity; over > 0 {
		cfg.History = append([]domain.AssignmentRecord(nil), cfg.History[over:]...)
	}
	if cfg.Stats.ByMember == nil {
		cfg.Stats.ByMember = map[string]int64{}
	}
	cfg.Stats.TotalAssignments++
	cfg.Stats.ByMember[memberID]++
}

// OpenWorkload counts open tickets claimed by each member.
func OpenWorkload(tickets []domain.Ticket) map[string]int {
	load := make(map[string]int)
	for i := range tickets {
		t := &tickets[i]
		if t.Status == domain.TicketStatusOpen && t.ClaimerID != nil {
			load[*t.ClaimerID]++
		}
	}
	return load
}

func roundRobin(eligible []domain.Member, history []domain.AssignmentRecord) string {
	lastSeen := make(map[string]int, len(history))
	for i, rec := range history {
		lastSeen[rec.MemberID] = i
	}
	best := eligible[0].ID
	bestIdx := recencyIndex(lastSeen, best)
	for _, m := range eligible[1:] {
		if idx := recencyIndex(lastSeen, m.ID); idx < bestIdx {
			best, bestIdx = m.ID, idx
		}
	}
	return best
}

func recencyIndex(lastSeen map[string]int, id string) int {
	if idx, ok := lastSeen[id]; ok {
		return idx
	}
	return -1
}

func leastLoaded(eligible []domain.Member, open []domain.Ticket) string {
	load := OpenWorkload(open)
	best := eligible[0].ID
	for _, m := range eligible[1:] {
		if load[m.ID] < load[best] {
			best = m.ID
		}
	}
	return best
}

func priorityQueue(eligible []domain.Member, open []domain.Ticket, priority domain.Priority) string {
	load := OpenWorkload(open)
	best := eligible[0].ID
	bestScore := Score(eligible[0], load[eligible[0].ID], priority)
	for _, m := range eligible[1:] {
		if s := Score(m, load[m.ID], priority); s > bestScore {
			best, bestScore = m.ID, s
		}
	}
	return best
}

// Score is the priority queue ranking of a member.
func Score(m domain.Member, workload int, priority domain.Priority) int {
	score := baseScore - workloadWeight*workload
	switch m.Presence {
	case domain.PresenceOnline:
		score += onlineBonus
	case domain.PresenceIdle, domain.PresenceDND:
		score += idleBonus
	}
	if priority == domain.PriorityHigh && workload == 0 {
		score += urgentIdleBump
	}
	return score
}
