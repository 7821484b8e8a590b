package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// GatewayConfig configures the HTTP gateway adapter.
type GatewayConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Gateway implements Adapter against a platform gateway that exposes
// channels, rosters and messages over JSON/HTTP.
type Gateway struct {
	base    string
	token   string
	timeout time.Duration
}

// NewGateway builds an HTTP adapter.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("platform gateway: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{base: base, token: cfg.Token, timeout: cfg.Timeout}, nil
}

// StatusError is returned for unexpected gateway responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform gateway %s: status %d: %s", e.Op, e.Status, e.Body)
}

type channelResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (g *Gateway) CreateChannel(ctx context.Context, spec ChannelSpec) (string, error) {
	var out channelResponse
	path := "/guilds/" + url.PathEscape(spec.GuildID) + "/channels"
	if err := g.do(ctx, "create channel", fiber.MethodPost, path, spec, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("platform gateway create channel: empty channel id")
	}
	return out.ID, nil
}

func (g *Gateway) RenameChannel(ctx context.Context, channelRef, name string) error {
	body := map[string]string{"name": name}
	return g.do(ctx, "rename channel", fiber.MethodPatch, channelPath(channelRef), body, nil)
}

func (g *Gateway) ChannelName(ctx context.Context, channelRef string) (string, error) {
	var out channelResponse
	if err := g.do(ctx, "get channel", fiber.MethodGet, channelPath(channelRef), nil, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelRef string) error {
	return g.do(ctx, "delete channel", fiber.MethodDelete, channelPath(channelRef), nil, nil)
}

func (g *Gateway) ReplacePermissions(ctx context.Context, channelRef string, perms domain.PermissionSet) error {
	return g.do(ctx, "replace permissions", fiber.MethodPut, channelPath(channelRef)+"/permissions", perms, nil)
}

func (g *Gateway) FetchRoster(ctx context.Context, guildID string) ([]domain.Member, error) {
	var out []domain.Member
	if err := g.do(ctx, "fetch roster", fiber.MethodGet, "/guilds/"+url.PathEscape(guildID)+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) SendMessage(ctx context.Context, channelRef string, msg Message) error {
	return g.do(ctx, "send message", fiber.MethodPost, channelPath(channelRef)+"/messages", msg, nil)
}

func (g *Gateway) SendDirect(ctx context.Context, userID string, msg Message) error {
	return g.do(ctx, "send direct message", fiber.MethodPost, "/users/"+url.PathEscape(userID)+"/messages", msg, nil)
}

func channelPath(ref string) string {
	return "/channels/" + url.PathEscape(ref)
}

func (g *Gateway) do(ctx context.Context, op, method, path string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := g.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(g.base + path)
	agent.Timeout(timeout)
	if g.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bot "+g.token)
	}
	if in != nil {
		agent.JSON(in)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("platform gateway %s: %w", op, err)
	}

	// Bytes releases the agent.
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("platform gateway %s: %w", op, errs[0])
	}

	switch {
	case status == fiber.StatusTooManyRequests:
		return fmt.Errorf("platform gateway %s: %w", op, ErrThrottled)
	case status == fiber.StatusNotFound && strings.HasPrefix(path, "/channels/"):
		return fmt.Errorf("platform gateway %s: %w", op, ErrUnknownChannel)
	case status >= fiber.StatusBadRequest:
		return &StatusError{Op: op, Status: status, Body: truncate(string(body), 256)}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("platform gateway %s: decode response: %w", op, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
