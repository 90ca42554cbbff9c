package client

import "time"

// Session is a conversation held by the agent service.
type Session struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	ClientID    string    `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Soul        string    `json:"soul,omitempty" yaml:"soul,omitempty"`
	TotalTokens *int64    `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
	Messages    []Message `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Message is one exchange in a session. Chat-style records carry Role and
// Content; session history carries Prompt and Response.
type Message struct {
	Role     string `json:"role,omitempty" yaml:"role,omitempty"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
	Prompt   string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Response string `json:"response,omitempty" yaml:"response,omitempty"`
}

// Usage is token accounting for one model call.
type Usage struct {
	PromptTokens     *int64 `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	CompletionTokens *int64 `json:"completion_tokens,omitempty" yaml:"completion_tokens,omitempty"`
	TotalTokens      *int64 `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
}

// HumanInfo is a record the agent keeps about a person.
type HumanInfo struct {
	ID    string            `json:"id,omitempty" yaml:"id,omitempty"`
	Data  map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
	Notes string            `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Skill is an installed agent skill.
type Skill struct {
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Config is the service configuration. Every section is optional; a nil
// section means the service keeps its own default.
type Config struct {
	StorageDir string          `json:"storage_dir,omitempty" yaml:"storage_dir,omitempty"`
	Server     *ServerConfig   `json:"server,omitempty" yaml:"server,omitempty"`
	Models     *ModelsConfig   `json:"models,omitempty" yaml:"models,omitempty"`
	Agents     *AgentsConfig   `json:"agents,omitempty" yaml:"agents,omitempty"`
	Channels   *ChannelsConfig `json:"channels,omitempty" yaml:"channels,omitempty"`
}

type ServerConfig struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	AdminUser string `json:"admin_user,omitempty" yaml:"admin_user,omitempty"`
	AdminPass string `json:"admin_pass,omitempty" yaml:"admin_pass,omitempty"`
}

type ModelsConfig struct {
	Mode      string                    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Providers map[string]ProviderConfig `json:"providers,omitempty" yaml:"providers,omitempty"`
}

type AgentsConfig struct {
	Debug    *bool          `json:"debug,omitempty" yaml:"debug,omitempty"`
	Defaults *AgentDefaults `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

type AgentDefaults struct {
	Model *ModelSelection `json:"model,omitempty" yaml:"model,omitempty"`
}

// ModelSelection names the primary model and the ones tried after it.
type ModelSelection struct {
	Primary   string   `json:"primary,omitempty" yaml:"primary,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

type ChannelsConfig struct {
	WhatsApp *WhatsAppConfig `json:"whatsapp,omitempty" yaml:"whatsapp,omitempty"`
	IRC      *IRCConfig      `json:"irc,omitempty" yaml:"irc,omitempty"`
}

type WhatsAppConfig struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Allowlist []string `json:"allowlist,omitempty" yaml:"allowlist,omitempty"`
	Blocklist []string `json:"blocklist,omitempty" yaml:"blocklist,omitempty"`
}

type IRCConfig struct {
	Enabled  *bool           `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Host     string          `json:"host,omitempty" yaml:"host,omitempty"`
	Port     *int            `json:"port,omitempty" yaml:"port,omitempty"`
	TLS      *bool           `json:"tls,omitempty" yaml:"tls,omitempty"`
	Nick     string          `json:"nick,omitempty" yaml:"nick,omitempty"`
	User     string          `json:"user,omitempty" yaml:"user,omitempty"`
	RealName string          `json:"realname,omitempty" yaml:"realname,omitempty"`
	Channels []string        `json:"channels,omitempty" yaml:"channels,omitempty"`
	NickServ *NickServConfig `json:"nickserv,omitempty" yaml:"nickserv,omitempty"`
}

type NickServConfig struct {
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// ProviderConfig describes one model provider.
type ProviderConfig struct {
	BaseURL string        `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	APIKey  string        `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	API     string        `json:"api,omitempty" yaml:"api,omitempty"`
	Models  []ModelConfig `json:"models,omitempty" yaml:"models,omitempty"`
}

// ModelConfig describes one model offered by a provider.
type ModelConfig struct {
	ID            string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name          string     `json:"name,omitempty" yaml:"name,omitempty"`
	ContextWindow *int       `json:"contextWindow,omitempty" yaml:"contextWindow,omitempty"`
	MaxTokens     *int       `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Reasoning     *bool      `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Input         []string   `json:"input,omitempty" yaml:"input,omitempty"`
	Cost          *ModelCost `json:"cost,omitempty" yaml:"cost,omitempty"`
}

// ModelCost is the price per million tokens.
type ModelCost struct {
	Input      *float64 `json:"input,omitempty" yaml:"input,omitempty"`
	Output     *float64 `json:"output,omitempty" yaml:"output,omitempty"`
	CacheRead  *float64 `json:"cacheRead,omitempty" yaml:"cacheRead,omitempty"`
	CacheWrite *float64 `json:"cacheWrite,omitempty" yaml:"cacheWrite,omitempty"`
}

// Task is a scheduled prompt run by the service.
type Task struct {
	ID             string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name           string     `json:"name,omitempty" yaml:"name,omitempty"`
	CronExpression string     `json:"cron_expression,omitempty" yaml:"cron_expression,omitempty"`
	Prompt         string     `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Active         *bool      `json:"active,omitempty" yaml:"active,omitempty"`
	NeededSkills   []string   `json:"needed_skills,omitempty" yaml:"needed_skills,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	Created        *time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	Updated        *time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`
	ReportSession  string     `json:"report_session,omitempty" yaml:"report_session,omitempty"`
	ReportChannels []string   `json:"report_channels,omitempty" yaml:"report_channels,omitempty"`
	Silent         *bool      `json:"silent,omitempty" yaml:"silent,omitempty"`
}

// PromptRequest is the body of a prompt submission.
type PromptRequest struct {
	Prompt      string         `json:"prompt"`
	SessionID   string         `json:"session_id,omitempty"`
	Model       string         `json:"model,omitempty"`
	Temperature *float32       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Options     *PromptOptions `json:"options,omitempty"`
}

// PromptOptions tune a single model call.
type PromptOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type PromptResponse struct {
	Response string `json:"response" yaml:"response"`
}

// StreamPromptQuery is the query of a streaming prompt.
type StreamPromptQuery struct {
	Prompt    string
	SessionID string
	Model     string
}

func (q StreamPromptQuery) values() map[string]any {
	m := map[string]any{"prompt": q.Prompt}
	if q.SessionID != "" {
		m["session_id"] = q.SessionID
	}
	if q.Model != "" {
		m["model"] = q.Model
	}
	return m
}

// InteractionAction selects what an interaction call does.
type InteractionAction string

const (
	InteractionNew    InteractionAction = "new"
	InteractionStatus InteractionAction = "status"
)

type InteractionRequest struct {
	Action   InteractionAction `json:"action"`
	ClientID string            `json:"client_id,omitempty"`
}

// InteractionResponse holds SessionID for "new" and the status fields for
// "status".
type InteractionResponse struct {
	SessionID    string   `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	PrimaryModel string   `json:"primary_model,omitempty" yaml:"primary_model,omitempty"`
	NumSubagents *int     `json:"num_subagents,omitempty" yaml:"num_subagents,omitempty"`
	Sessions     []string `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Channels     []string `json:"channels,omitempty" yaml:"channels,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status" yaml:"status"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// StatusResponse is the acknowledgement returned by mutating admin calls.
type StatusResponse struct {
	Status string `json:"status,omitempty" yaml:"status,omitempty"`
}

// ChannelAction is an operation on a messaging channel.
type ChannelAction string

const (
	ChannelStatus  ChannelAction = "status"
	ChannelEnroll  ChannelAction = "enroll"
	ChannelSend    ChannelAction = "send"
	ChannelDevices ChannelAction = "devices"
	ChannelChat    ChannelAction = "chat"
)

// Valid reports whether a is one of the known actions.
func (a ChannelAction) Valid() bool {
	switch a {
	case ChannelStatus, ChannelEnroll, ChannelSend, ChannelDevices, ChannelChat:
		return true
	}
	return false
}

type ChannelActionRequest struct {
	Channel string        `json:"channel"`
	Action  ChannelAction `json:"action"`
	Device  string        `json:"device,omitempty"`
	Message string        `json:"message,omitempty"`
	Prompt  string        `json:"prompt,omitempty"`
}

type ChannelActionResponse struct {
	Status   string   `json:"status,omitempty" yaml:"status,omitempty"`
	Devices  []string `json:"devices,omitempty" yaml:"devices,omitempty"`
	Response string   `json:"response,omitempty" yaml:"response,omitempty"`
}

type SessionHistory struct {
	Messages    []Message `json:"messages" yaml:"messages"`
	TotalTokens int64     `json:"total_tokens" yaml:"total_tokens"`
}

type SessionStats struct {
	SessionID    string  `json:"session_id" yaml:"session_id"`
	TotalTokens  int64   `json:"total_tokens" yaml:"total_tokens"`
	PromptTokens int64   `json:"prompt_tokens" yaml:"prompt_tokens"`
	OutputTokens int64   `json:"output_tokens" yaml:"output_tokens"`
	TotalCost    float64 `json:"total_cost" yaml:"total_cost"`
}

type UploadResult struct {
	Status   string `json:"status" yaml:"status"`
	Filename string `json:"filename" yaml:"filename"`
	Path     string `json:"path" yaml:"path"`
	Download string `json:"download" yaml:"download"`
}

// WSQuery selects the conversation a WebSocket attaches to. A Channel and
// Device pair bridges a messaging channel; otherwise the socket joins
// SessionID, or a new session for ClientID.
type WSQuery struct {
	SessionID string
	ClientID  string
	Channel   string
	Device    string
	Stream    bool
}

func (q WSQuery) values() map[string]any {
	m := map[string]any{}
	for k, v := range map[string]string{
		"session_id": q.SessionID,
		"client_id":  q.ClientID,
		"channel":    q.Channel,
		"device":     q.Device,
	} {
		if v != "" {
			m[k] = v
		}
	}
	if q.Stream {
		m["stream"] = "true"
	}
	return m
}
