package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lectern/pkg/interfaces"
	"github.com/m-mizutani/lectern/pkg/model"
	"github.com/m-mizutani/lectern/pkg/usecase/chat"
	"github.com/m-mizutani/lectern/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ToolSearch = "search_course_content"
	ToolAsk    = "ask_course_assistant"
	ToolVoice  = "voice_command"
)

// Server exposes course retrieval and the chat assistant as MCP tools
type Server struct {
	chat      *chat.UseCase
	retriever interfaces.Retriever
	server    *mcp.Server
}

// Option is a functional option for Server
type Option func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

func WithImplementation(name, version string) Option {
	return func(c *serverConfig) {
		c.name = name
		c.version = version
	}
}

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type askParams struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type voiceParams struct {
	VoiceInput string `json:"voice_input"`
	SessionID  string `json:"session_id,omitempty"`
}

var (
	searchSchema = &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {Type: "string", Description: "Question or keywords to look up in the course textbook"},
			"limit": {Type: "integer", Description: "Maximum number of passages to return"},
		},
		Required: []string{"query"},
	}

	askSchema = &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"message":    {Type: "string", Description: "Student question"},
			"session_id": {Type: "string", Description: "Existing chat session to continue. Omit to start a new one"},
		},
		Required: []string{"message"},
	}

	voiceSchema = &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"voice_input": {Type: "string", Description: "Transcribed voice command, e.g. \"move forward 2 meters\""},
			"session_id":  {Type: "string", Description: "Chat session that logs the command. Omit to start a new one"},
		},
		Required: []string{"voice_input"},
	}
)

// New registers the tools on a new MCP server
func New(uc *chat.UseCase, retriever interfaces.Retriever, opts ...Option) *Server {
	cfg := &serverConfig{name: "lectern", version: "0.1.0"}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		chat:      uc,
		retriever: retriever,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.name,
			Version: cfg.version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolSearch,
		Description: "Search the robotics course textbook and return the most relevant passages",
		InputSchema: searchSchema,
	}, s.search)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolAsk,
		Description: "Ask the course assistant a question. The answer is grounded on textbook passages and logged in a chat session",
		InputSchema: askSchema,
	}, s.ask)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolVoice,
		Description: "Interpret a voice command as a robot action (navigation, manipulation, communication or query)",
		InputSchema: voiceSchema,
	}, s.voice)

	return s
}

// Run serves over stdin/stdout until ctx is canceled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

// Connect serves a single session over the given transport
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}

func (s *Server) search(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
	if params.Query == "" {
		return toolError("query is required"), nil, nil
	}

	results, err := s.retriever.Retrieve(ctx, params.Query, params.Limit)
	if err != nil {
		return s.failure(ctx, ToolSearch, err), nil, nil
	}
	if results == nil {
		results = []*model.RetrievalResult{}
	}
	return jsonResult(results)
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
	resp, err := s.chat.Chat(ctx, chat.ChatInput{
		SessionID: model.SessionID(params.SessionID),
		Message:   params.Message,
	})
	if err != nil {
		return s.failure(ctx, ToolAsk, err), nil, nil
	}
	return jsonResult(resp)
}

func (s *Server) voice(ctx context.Context, req *mcp.CallToolRequest, params *voiceParams) (*mcp.CallToolResult, any, error) {
	resp, err := s.chat.VoiceCommand(ctx, chat.VoiceInput{
		SessionID: model.SessionID(params.SessionID),
		Input:     params.VoiceInput,
	})
	if err != nil {
		return s.failure(ctx, ToolVoice, err), nil, nil
	}
	return jsonResult(resp)
}

// failure turns domain errors into tool-level errors the model can read
func (s *Server) failure(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, model.ErrValidation):
		return toolError(err.Error())
	case errors.Is(err, model.ErrSessionNotFound):
		return toolError("session not found")
	case errors.Is(err, model.ErrSessionClosed):
		return toolError("session is closed")
	case errors.Is(err, model.ErrServiceUnavailable):
		return toolError("course search is temporarily unavailable")
	case errors.Is(err, model.ErrEncodingFailure):
		return toolError("query is too long to search")
	}

	logging.From(ctx).Error("mcp tool failed", "tool", tool, "error", err)
	return toolError("internal error")
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil, nil
}
