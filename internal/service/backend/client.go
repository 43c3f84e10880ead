package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/speakeasy/internal/model/chat"
	"github.com/zhouzirui/speakeasy/internal/model/persona"
	"github.com/zhouzirui/speakeasy/pkg/utils"
)

// DefaultTimeout bounds every call that doesn't carry a tighter deadline.
const DefaultTimeout = 30 * time.Second

var ErrEmptyGreeting = errors.New("session created without a greeting")

// SessionRequest is the body of POST /session. Which fields are set depends on the target kind.
type SessionRequest struct {
	ScenarioID     string   `json:"scenarioId,omitempty"`
	CustomScenario bool     `json:"customScenario,omitempty"`
	AIName         string   `json:"aiName,omitempty"`
	Role           string   `json:"role,omitempty"`
	Traits         []string `json:"traits,omitempty"`
	Context        string   `json:"context,omitempty"`
	UserRole       string   `json:"userRole,omitempty"`
	Objectives     []string `json:"objectives,omitempty"`
}

// NewSessionRequest maps a conversation target onto the session-create body.
func NewSessionRequest(t persona.Target) SessionRequest {
	switch {
	case t.Kind == persona.KindAssistant && t.Persona != nil:
		return SessionRequest{
			AIName:  t.Persona.Name,
			Role:    t.Persona.Role,
			Traits:  t.Persona.Traits,
			Context: t.Persona.Context,
		}
	case t.Custom != nil:
		return SessionRequest{
			CustomScenario: true,
			AIName:         t.Custom.AIName,
			Role:           t.Custom.Role,
			Traits:         t.Custom.Traits,
			Context:        t.Custom.Context,
			UserRole:       t.Custom.UserRole,
			Objectives:     t.Custom.Objectives,
		}
	default:
		return SessionRequest{ScenarioID: t.ScenarioID}
	}
}

// SessionResponse is the body returned by POST /session.
type SessionResponse struct {
	SessionID       string `json:"sessionId,omitempty"`
	GreetingMessage string `json:"greetingMessage"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages        []chat.Message    `json:"messages"`
	ChatType        chat.ChatType     `json:"chatType"`
	ScenarioDetails *persona.Scenario `json:"scenarioDetails,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Reply    string         `json:"reply"`
	Feedback *chat.Feedback `json:"feedback"`
}

// Client talks to the conversational chat/session backend.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a chat backend client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    utils.NewHTTPClient(),
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession starts a conversation and returns the partner's greeting.
func (c *Client) CreateSession(ctx context.Context, target persona.Target) (string, error) {
	if err := target.Validate(); err != nil {
		return "", err
	}

	var resp SessionResponse
	if err := c.postJSON(ctx, "/session", NewSessionRequest(target), &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	greeting := strings.TrimSpace(resp.GreetingMessage)
	if greeting == "" {
		return "", ErrEmptyGreeting
	}
	return greeting, nil
}

// Chat sends the (already trimmed) history and returns the reply plus feedback on the last user turn.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, "/chat", req, &resp); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &resp, nil
}

// ScenarioOptions lists the roles a learner can pick from.
func (c *Client) ScenarioOptions(ctx context.Context) ([]persona.ScenarioOption, error) {
	var out []persona.ScenarioOption
	if err := c.get(ctx, "/scenarios/options", nil, &out); err != nil {
		return nil, fmt.Errorf("scenario options: %w", err)
	}
	return out, nil
}

// ScenariosByRole lists scenarios for one learner role.
func (c *Client) ScenariosByRole(ctx context.Context, role string) ([]persona.Scenario, error) {
	var out []persona.Scenario
	query := url.Values{"role": []string{role}}
	if err := c.get(ctx, "/scenarios/by-role", query, &out); err != nil {
		return nil, fmt.Errorf("scenarios by role: %w", err)
	}
	return out, nil
}

// Scenario fetches one scenario by id.
func (c *Client) Scenario(ctx context.Context, id string) (*persona.Scenario, error) {
	var out persona.Scenario
	if err := c.get(ctx, "/scenarios/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", id, err)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(payload), out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return err
	}

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	return utils.DecodeResponse(resp, out)
}
