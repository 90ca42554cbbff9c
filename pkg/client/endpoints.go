package client

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/oapi-codegen/runtime"
)

const (
	apiPrefix   = "/api/v1"
	adminPrefix = "/api/admin/v1"
)

// Operation names an endpoint of the agent service.
type Operation string

const (
	OpPromptCreate        Operation = "V1PromptCreate"
	OpPromptStream        Operation = "V1PromptStreamList"
	OpInteractionCreate   Operation = "V1InteractionCreate"
	OpFileDownload        Operation = "V1FilesDetail"
	OpFileUpload          Operation = "V1FilesUploadCreate"
	OpAdminHealth         Operation = "AdminV1HealthList"
	OpAdminConfigGet      Operation = "AdminV1ConfigList"
	OpAdminConfigUpdate   Operation = "AdminV1ConfigCreate"
	OpAdminHumanList      Operation = "AdminV1HumanList"
	OpAdminHumanCreate    Operation = "AdminV1HumanCreate"
	OpAdminSkillsList     Operation = "AdminV1SkillsList"
	OpAdminSkillDetail    Operation = "AdminV1SkillsDetail"
	OpAdminSkillDelete    Operation = "AdminV1SkillsDelete"
	OpAdminChannelsCreate Operation = "AdminV1ChannelsCreate"
	OpAdminSessionsList   Operation = "AdminV1SessionsList"
	OpAdminSessionDetail  Operation = "AdminV1SessionsDetail"
	OpAdminSessionHistory Operation = "AdminV1SessionsHistoryList"
	OpAdminSessionStats   Operation = "AdminV1SessionsStatsList"
	OpAdminSessionSkills  Operation = "AdminV1SessionsSkillsList"
	OpAdminTasksList      Operation = "AdminV1TasksList"
	OpAdminTaskDetail     Operation = "AdminV1TasksDetail"
	OpWebSocket           Operation = "GetWs"
)

// ParamPlacement says where an endpoint's parameters travel.
type ParamPlacement string

const (
	ParamsNone  ParamPlacement = "none"
	ParamsPath  ParamPlacement = "path"
	ParamsQuery ParamPlacement = "query"
	ParamsBody  ParamPlacement = "body"
)

// Endpoint is the static wire shape of one operation.
type Endpoint struct {
	Operation Operation
	Method    string
	// Path is a template; {name} segments are path parameters.
	Path      string
	Params    ParamPlacement
	Type      ContentType
	Secure    bool
	Format    ResponseFormat
	// Response names the decoded shape, for documentation and tooling.
	Response string
	// Upgrade marks the WebSocket handshake, which bypasses Request.
	Upgrade bool
}

var endpointTable = map[Operation]Endpoint{
	OpPromptCreate: {
		Method: http.MethodPost, Path: apiPrefix + "/prompt",
		Params: ParamsBody, Type: ContentTypeJSON, Secure: true, Format: FormatJSON,
		Response: "PromptResponse",
	},
	OpPromptStream: {
		Method: http.MethodGet, Path: apiPrefix + "/prompt/stream",
		Params: ParamsQuery, Secure: true, Format: FormatStream,
		Response: "text/event-stream",
	},
	OpInteractionCreate: {
		Method: http.MethodPost, Path: apiPrefix + "/interaction",
		Params: ParamsBody, Type: ContentTypeJSON, Secure: true,
		Response: "InteractionResponse",
	},
	OpFileDownload: {
		Method: http.MethodGet, Path: apiPrefix + "/files/{filepath}",
		Params: ParamsPath, Secure: true, Format: FormatBlob,
		Response: "bytes",
	},
	OpFileUpload: {
		Method: http.MethodPost, Path: apiPrefix + "/files/upload",
		Params: ParamsBody, Type: ContentTypeFormData, Secure: true, Format: FormatJSON,
		Response: "UploadResult",
	},
	OpAdminHealth: {
		Method: http.MethodGet, Path: adminPrefix + "/health",
		Params: ParamsNone, Secure: true, Format: FormatJSON,
		Response: "HealthResponse",
	},
	OpAdminConfigGet: {
		Method: http.MethodGet, Path: adminPrefix + "/config",
		Params: ParamsNone, Secure: true, Format: FormatJSON,
		Response: "Config",
	},
	OpAdminConfigUpdate: {
		Method: http.MethodPost, Path: adminPrefix + "/config",
		Params: ParamsBody, Type: ContentTypeJSON, Secure: true,
		Response: "StatusResponse",
	},
	OpAdminHumanList: {
		Method: http.MethodGet, Path: adminPrefix + "/human",
		Params: ParamsNone, Secure: true, Format: FormatJSON,
		Response: "[]HumanInfo",
	},
	OpAdminHumanCreate: {
		Method: http.MethodPost, Path: adminPrefix + "/human",
		Params: ParamsBody, Type: ContentTypeJSON, Secure: true,
		Response: "StatusResponse",
	},
	OpAdminSkillsList: {
		Method: http.MethodGet, Path: adminPrefix + "/skills",
		Params: ParamsNone, Secure: true, Format: FormatJSON,
		Response: "[]Skill",
	},
	OpAdminSkillDetail: {
		Method: http.MethodGet, Path: adminPrefix + "/skills/{name}",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "Skill",
	},
	OpAdminSkillDelete: {
		Method: http.MethodDelete, Path: adminPrefix + "/skills/{name}",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "StatusResponse",
	},
	OpAdminChannelsCreate: {
		Method: http.MethodPost, Path: adminPrefix + "/channels",
		Params: ParamsBody, Type: ContentTypeJSON, Secure: true,
		Response: "ChannelActionResponse",
	},
	OpAdminSessionsList: {
		Method: http.MethodGet, Path: adminPrefix + "/sessions",
		Params: ParamsNone, Secure: true, Format: FormatJSON,
		Response: "[]string",
	},
	OpAdminSessionDetail: {
		Method: http.MethodGet, Path: adminPrefix + "/sessions/{id}",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "Session",
	},
	OpAdminSessionHistory: {
		Method: http.MethodGet, Path: adminPrefix + "/sessions/{id}/history",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "SessionHistory",
	},
	OpAdminSessionStats: {
		Method: http.MethodGet, Path: adminPrefix + "/sessions/{id}/stats",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "SessionStats",
	},
	OpAdminSessionSkills: {
		Method: http.MethodGet, Path: adminPrefix + "/sessions/{id}/skills",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "[]string",
	},
	OpAdminTasksList: {
		Method: http.MethodGet, Path: adminPrefix + "/tasks",
		Params: ParamsNone, Secure: true, Format: FormatJSON,
		Response: "[]Task",
	},
	OpAdminTaskDetail: {
		Method: http.MethodGet, Path: adminPrefix + "/tasks/{id}",
		Params: ParamsPath, Secure: true, Format: FormatJSON,
		Response: "Task",
	},
	OpWebSocket: {
		Method: http.MethodGet, Path: "/ws",
		Params: ParamsQuery, Secure: true,
		Response: "WSMessage", Upgrade: true,
	},
}

func init() {
	for op, e := range endpointTable {
		e.Operation = op
		endpointTable[op] = e
	}
}

// LookupEndpoint returns the wire shape of op.
func LookupEndpoint(op Operation) (Endpoint, bool) {
	e, ok := endpointTable[op]
	return e, ok
}

// Endpoints returns the whole table ordered by path, then method.
func Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(endpointTable))
	for _, e := range endpointTable {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

var pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// PathParams lists the parameter names of the path template in order.
func (e Endpoint) PathParams() []string {
	var names []string
	for _, m := range pathParamPattern.FindAllStringSubmatch(e.Path, -1) {
		names = append(names, m[1])
	}
	return names
}

// ResolvePath fills the path template. Every parameter must be present and
// non-empty. The filepath parameter keeps its slashes; all others are
// escaped as a single segment.
func (e Endpoint) ResolvePath(params map[string]string) (string, error) {
	var resolveErr error
	path := pathParamPattern.ReplaceAllStringFunc(e.Path, func(seg string) string {
		name := seg[1 : len(seg)-1]
		value := params[name]
		if value == "" {
			if resolveErr == nil {
				resolveErr = &ConfigurationError{Op: string(e.Operation), Field: name, Reason: "is required"}
			}
			return seg
		}
		if name == "filepath" {
			return escapeFilePath(value)
		}
		styled, err := runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, value)
		if err != nil && resolveErr == nil {
			resolveErr = &ConfigurationError{Op: string(e.Operation), Field: name, Err: err}
		}
		return styled
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return path, nil
}

func escapeFilePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segments {
		styled, err := runtime.StyleParamWithLocation("simple", false, "filepath", runtime.ParamLocationPath, s)
		if err == nil {
			segments[i] = styled
		}
	}
	return strings.Join(segments, "/")
}

// params builds the request descriptor for a call to e.
func (e Endpoint) params(pathParams map[string]string) (FullRequestParams, error) {
	path, err := e.ResolvePath(pathParams)
	if err != nil {
		return FullRequestParams{}, err
	}
	return FullRequestParams{
		RequestParams: RequestParams{
			Secure: boolPtr(e.Secure),
			Type:   e.Type,
			Format: e.Format,
		},
		Operation: string(e.Operation),
		Path:      path,
		Method:    e.Method,
	}, nil
}

func mustEndpoint(op Operation) Endpoint {
	e, ok := endpointTable[op]
	if !ok {
		panic(fmt.Sprintf("client: unknown operation %s", op))
	}
	return e
}
