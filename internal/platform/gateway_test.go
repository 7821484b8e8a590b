package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

func newGatewayServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Gateway, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: string(body)})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	gw, err := NewGateway(GatewayConfig{BaseURL: srv.URL + "/", Token: "secret", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return gw, &reqs
}

func TestGatewayChannelLifecycle(t *testing.T) {
	gw, reqs := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/guilds/g1/channels":
			_, _ = io.WriteString(w, `{"id":"c-9","name":"ticket-0001"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/channels/c-9":
			_, _ = io.WriteString(w, `{"id":"c-9","name":"claimed-0001"}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	perms := domain.PermissionSet{Overwrites: []domain.Overwrite{{Kind: domain.PrincipalEveryone, Deny: domain.PermViewChannel}}}
	ref, err := gw.CreateChannel(ctx, ChannelSpec{GuildID: "g1", Name: "ticket-0001", Permissions: perms})
	if err != nil || ref != "c-9" {
		t.Fatalf("CreateChannel = %q, %v", ref, err)
	}
	name, err := gw.ChannelName(ctx, ref)
	if err != nil || name != "claimed-0001" {
		t.Fatalf("ChannelName = %q, %v", name, err)
	}
	if err := gw.RenameChannel(ctx, ref, "urgent-claimed-0001"); err != nil {
		t.Fatal(err)
	}
	if err := gw.ReplacePermissions(ctx, ref, perms); err != nil {
		t.Fatal(err)
	}
	if err := gw.DeleteChannel(ctx, ref); err != nil {
		t.Fatal(err)
	}

	got := *reqs
	if len(got) != 5 {
		t.Fatalf("requests = %+v", got)
	}
	if got[0].Auth != "Bot secret" {
		t.Fatalf("authorization header = %q", got[0].Auth)
	}
	var spec ChannelSpec
	if err := json.Unmarshal([]byte(got[0].Body), &spec); err != nil || spec.Name != "ticket-0001" || len(spec.Permissions.Overwrites) != 1 {
		t.Fatalf("create body = %s (%v)", got[0].Body, err)
	}
	if got[2].Method != http.MethodPatch || got[2].Body != `{"name":"urgent-claimed-0001"}` {
		t.Fatalf("rename request = %+v", got[2])
	}
	if got[3].Method != http.MethodPut || got[3].Path != "/channels/c-9/permissions" {
		t.Fatalf("permissions request = %+v", got[3])
	}
}

func TestGatewayErrorMapping(t *testing.T) {
	gw, _ := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/channels/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "boom")
		}
	})
	ctx := context.Background()

	if err := gw.RenameChannel(ctx, "busy", "x"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("429 err = %v", err)
	}
	if _, err := gw.ChannelName(ctx, "gone"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("404 err = %v", err)
	}
	var statusErr *StatusError
	if _, err := gw.FetchRoster(ctx, "g1"); !errors.As(err, &statusErr) || statusErr.Status != 500 || statusErr.Body != "boom" {
		t.Fatalf("500 err = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := gw.SendDirect(cancelled, "u", Message{Content: "hi"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err = %v", err)
	}
}

func TestGatewayRoster(t *testing.T) {
	gw, _ := newGatewayServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"m1","roles":["support"],"presence":"online"},{"id":"bot","bot":true}]`)
	})
	members, err := gw.FetchRoster(context.Background(), "g1")
	if err != nil || len(members) != 2 || !members[1].Bot || members[0].Presence != domain.PresenceOnline {
		t.Fatalf("FetchRoster = %+v, %v", members, err)
	}
}

func TestNewGatewayRejectsBadURL(t *testing.T) {
	if _, err := NewGateway(GatewayConfig{BaseURL: "not a url"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryPlatform(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ref, err := m.CreateChannel(ctx, ChannelSpec{GuildID: "g", Name: "ticket-0001"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RenameChannel(ctx, ref, "claimed-0001"); err != nil {
		t.Fatal(err)
	}
	if name, _ := m.ChannelName(ctx, ref); name != "claimed-0001" {
		t.Fatalf("name = %q", name)
	}

	m.SetFailure("RenameChannel", ErrThrottled)
	if err := m.RenameChannel(ctx, ref, "x"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("injected err = %v", err)
	}
	m.SetFailure("RenameChannel", nil)
	if m.Calls("RenameChannel") != 2 {
		t.Fatalf("calls = %d", m.Calls("RenameChannel"))
	}

	if err := m.DeleteChannel(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if err := m.SendMessage(ctx, ref, Message{Content: "late"}); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("send to deleted channel err = %v", err)
	}
}
