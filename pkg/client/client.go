package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Client is the typed SDK for the agent service.
type Client struct {
	*HTTPClient
}

// New creates a Client for baseURL. An empty baseURL keeps DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, &ConfigurationError{Op: "New", Field: "baseURL", Err: err}
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, &ConfigurationError{Op: "New", Field: "baseURL", Reason: fmt.Sprintf("%q is not an absolute URL", baseURL)}
		}
		opts = append([]Option{WithBaseURL(baseURL)}, opts...)
	}
	return &Client{HTTPClient: NewHTTPClient(opts...)}, nil
}

// NewClientID returns a fresh identifier for interaction and WebSocket
// clients.
func NewClientID() string {
	return uuid.NewString()
}

type call struct {
	op    Operation
	path  map[string]string
	query map[string]any
	body  any
}

func (c call) params() (FullRequestParams, error) {
	p, err := mustEndpoint(c.op).params(c.path)
	if err != nil {
		return p, err
	}
	p.Query = c.query
	p.Body = c.body
	return p, nil
}

func invoke[T any](ctx context.Context, c *Client, cl call, opts []RequestOption) (T, error) {
	var zero T
	p, err := cl.params()
	if err != nil {
		return zero, err
	}
	resp, err := Do[T](ctx, c.HTTPClient, p, opts...)
	if err != nil {
		return zero, err
	}
	return resp.Data, nil
}

func required(op Operation, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ConfigurationError{Op: string(op), Field: field, Reason: "is required"}
	}
	return nil
}

// SubmitPrompt sends a prompt and waits for the full answer.
func (c *Client) SubmitPrompt(ctx context.Context, req PromptRequest, opts ...RequestOption) (*PromptResponse, error) {
	if err := required(OpPromptCreate, "prompt", req.Prompt); err != nil {
		return nil, err
	}
	return invoke[*PromptResponse](ctx, c, call{op: OpPromptCreate, body: req}, opts)
}

// StreamPrompt sends a prompt and returns the answer as it is generated.
// The caller must Close the stream.
func (c *Client) StreamPrompt(ctx context.Context, q StreamPromptQuery, opts ...RequestOption) (*PromptStream, error) {
	if err := required(OpPromptStream, "prompt", q.Prompt); err != nil {
		return nil, err
	}
	p, err := call{op: OpPromptStream, query: q.values()}.params()
	if err != nil {
		return nil, err
	}
	resp, err := c.RequestStream(ctx, p, opts...)
	if err != nil {
		return nil, err
	}
	return newPromptStream(resp.Stream, p.Method, resp.URL), nil
}

// Interaction runs a session control action.
func (c *Client) Interaction(ctx context.Context, req InteractionRequest, opts ...RequestOption) (*InteractionResponse, error) {
	switch req.Action {
	case InteractionNew:
		if err := required(OpInteractionCreate, "client_id", req.ClientID); err != nil {
			return nil, err
		}
	case InteractionStatus:
	default:
		return nil, &ConfigurationError{Op: string(OpInteractionCreate), Field: "action", Reason: fmt.Sprintf("unknown action %q", req.Action)}
	}
	return invoke[*InteractionResponse](ctx, c, call{op: OpInteractionCreate, body: req}, opts)
}

// NewSession opens a session for clientID and returns its id.
func (c *Client) NewSession(ctx context.Context, clientID string, opts ...RequestOption) (string, error) {
	resp, err := c.Interaction(ctx, InteractionRequest{Action: InteractionNew, ClientID: clientID}, opts...)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// Status reports the agent's primary model, sessions and channels.
func (c *Client) Status(ctx context.Context, opts ...RequestOption) (*InteractionResponse, error) {
	return c.Interaction(ctx, InteractionRequest{Action: InteractionStatus}, opts...)
}

// Health checks the admin API.
func (c *Client) Health(ctx context.Context, opts ...RequestOption) (*HealthResponse, error) {
	return invoke[*HealthResponse](ctx, c, call{op: OpAdminHealth}, opts)
}

// GetConfig returns the service configuration.
func (c *Client) GetConfig(ctx context.Context, opts ...RequestOption) (*Config, error) {
	return invoke[*Config](ctx, c, call{op: OpAdminConfigGet}, opts)
}

// UpdateConfig replaces the service configuration.
func (c *Client) UpdateConfig(ctx context.Context, cfg Config, opts ...RequestOption) (*StatusResponse, error) {
	return invoke[*StatusResponse](ctx, c, call{op: OpAdminConfigUpdate, body: cfg}, opts)
}

// ListHumanInfo returns every stored human-info record.
func (c *Client) ListHumanInfo(ctx context.Context, opts ...RequestOption) ([]HumanInfo, error) {
	return invoke[[]HumanInfo](ctx, c, call{op: OpAdminHumanList}, opts)
}

// SaveHumanInfo stores a human-info record.
func (c *Client) SaveHumanInfo(ctx context.Context, info HumanInfo, opts ...RequestOption) (*StatusResponse, error) {
	return invoke[*StatusResponse](ctx, c, call{op: OpAdminHumanCreate, body: info}, opts)
}

// ListSkills returns the installed skills.
func (c *Client) ListSkills(ctx context.Context, opts ...RequestOption) ([]Skill, error) {
	return invoke[[]Skill](ctx, c, call{op: OpAdminSkillsList}, opts)
}

// GetSkill returns one skill by name.
func (c *Client) GetSkill(ctx context.Context, name string, opts ...RequestOption) (*Skill, error) {
	return invoke[*Skill](ctx, c, call{op: OpAdminSkillDetail, path: map[string]string{"name": name}}, opts)
}

// RemoveSkill uninstalls a skill.
func (c *Client) RemoveSkill(ctx context.Context, name string, opts ...RequestOption) (*StatusResponse, error) {
	return invoke[*StatusResponse](ctx, c, call{op: OpAdminSkillDelete, path: map[string]string{"name": name}}, opts)
}

// ChannelAction runs an action on a messaging channel.
func (c *Client) ChannelAction(ctx context.Context, req ChannelActionRequest, opts ...RequestOption) (*ChannelActionResponse, error) {
	op := OpAdminChannelsCreate
	if err := required(op, "channel", req.Channel); err != nil {
		return nil, err
	}
	if !req.Action.Valid() {
		return nil, &ConfigurationError{Op: string(op), Field: "action", Reason: fmt.Sprintf("unknown action %q", req.Action)}
	}
	switch req.Action {
	case ChannelSend:
		if err := required(op, "device", req.Device); err != nil {
			return nil, err
		}
		if err := required(op, "message", req.Message); err != nil {
			return nil, err
		}
	case ChannelChat:
		if err := required(op, "device", req.Device); err != nil {
			return nil, err
		}
		if err := required(op, "prompt", req.Prompt); err != nil {
			return nil, err
		}
	}
	return invoke[*ChannelActionResponse](ctx, c, call{op: op, body: req}, opts)
}

// ListSessions returns the ids of all sessions.
func (c *Client) ListSessions(ctx context.Context, opts ...RequestOption) ([]string, error) {
	return invoke[[]string](ctx, c, call{op: OpAdminSessionsList}, opts)
}

// GetSession returns one session.
func (c *Client) GetSession(ctx context.Context, id string, opts ...RequestOption) (*Session, error) {
	return invoke[*Session](ctx, c, call{op: OpAdminSessionDetail, path: map[string]string{"id": id}}, opts)
}

// GetSessionHistory returns the messages of a session.
func (c *Client) GetSessionHistory(ctx context.Context, id string, opts ...RequestOption) (*SessionHistory, error) {
	return invoke[*SessionHistory](ctx, c, call{op: OpAdminSessionHistory, path: map[string]string{"id": id}}, opts)
}

// GetSessionStats returns token and cost accounting for a session.
func (c *Client) GetSessionStats(ctx context.Context, id string, opts ...RequestOption) (*SessionStats, error) {
	return invoke[*SessionStats](ctx, c, call{op: OpAdminSessionStats, path: map[string]string{"id": id}}, opts)
}

// GetSessionSkills returns the skills loaded into a session.
func (c *Client) GetSessionSkills(ctx context.Context, id string, opts ...RequestOption) ([]string, error) {
	return invoke[[]string](ctx, c, call{op: OpAdminSessionSkills, path: map[string]string{"id": id}}, opts)
}

// ListTasks returns the scheduled tasks.
func (c *Client) ListTasks(ctx context.Context, opts ...RequestOption) ([]Task, error) {
	return invoke[[]Task](ctx, c, call{op: OpAdminTasksList}, opts)
}

// GetTask returns one scheduled task.
func (c *Client) GetTask(ctx context.Context, id string, opts ...RequestOption) (*Task, error) {
	return invoke[*Task](ctx, c, call{op: OpAdminTaskDetail, path: map[string]string{"id": id}}, opts)
}

// DownloadFile fetches a file from the agent's storage.
func (c *Client) DownloadFile(ctx context.Context, filepath string, opts ...RequestOption) ([]byte, error) {
	return invoke[[]byte](ctx, c, call{op: OpFileDownload, path: map[string]string{"filepath": filepath}}, opts)
}

// UploadFile stores content under name in the agent's upload area.
func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader, opts ...RequestOption) (*UploadResult, error) {
	if err := required(OpFileUpload, "name", name); err != nil {
		return nil, err
	}
	if content == nil {
		return nil, &ConfigurationError{Op: string(OpFileUpload), Field: "content", Reason: "is required"}
	}
	form := NewFormData()
	form.AppendFile("file", File{Name: name, Content: content})
	return invoke[*UploadResult](ctx, c, call{op: OpFileUpload, body: form}, opts)
}
