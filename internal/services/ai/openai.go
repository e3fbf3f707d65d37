package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// OpenAIProviderName is the provider key used in feature routes
	OpenAIProviderName = "openai"
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second
)

// openAIModels lists the model keys this adapter will serve. Routes
// naming other keys fail resolution before any API call is made.
var openAIModels = map[string]bool{
	"gpt-4o":       true,
	"gpt-4o-mini":  true,
	"gpt-4.1":      true,
	"gpt-4.1-mini": true,
	"o3-mini":      true,
}

// OpenAIAdapter implements the Adapter interface using OpenAI's API
type OpenAIAdapter struct {
	client    openai.Client
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return NewOpenAIAdapterWithLogger(apiKey, DefaultOpenAIBaseURL, nil, false)
}

// NewOpenAIAdapterWithLogger creates a new OpenAI adapter with logger support
func NewOpenAIAdapterWithLogger(apiKey string, baseURL string, logger *zap.Logger, debugMode bool) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIAdapter{
		client:    client,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Name returns the provider key used in feature routes.
func (p *OpenAIAdapter) Name() string { return OpenAIProviderName }

// SupportsModel reports whether the adapter serves the model key.
func (p *OpenAIAdapter) SupportsModel(modelKey string) bool {
	return openAIModels[modelKey]
}

func (p *OpenAIAdapter) buildParams(req GenerateRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	model := req.ModelKey
	if model == "" {
		model = DefaultOpenAIModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
		// Temperature omitted - use model default to avoid "unsupported_value" errors
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.JSONResponse {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (p *OpenAIAdapter) logRequest(ctx context.Context, req GenerateRequest) {
	if p.logger == nil || !p.debugMode {
		return
	}
	previews := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		previews = append(previews, SanitizePrompt(msg.Content, false))
	}
	p.logger.Debug("llm_api_request",
		zap.String("operation", req.Intent),
		zap.String("model", req.ModelKey),
		zap.Int("message_count", len(req.Messages)),
		zap.Strings("message_previews", previews),
		zap.String("user_id", ExtractUserID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
	)
}

func (p *OpenAIAdapter) logError(ctx context.Context, req GenerateRequest, err error, latency time.Duration) {
	if p.logger == nil || !p.debugMode {
		return
	}
	p.logger.Debug("llm_api_error",
		zap.String("operation", req.Intent),
		zap.String("model", req.ModelKey),
		zap.Error(err),
		zap.String("user_id", ExtractUserID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
}

func (p *OpenAIAdapter) logResponse(ctx context.Context, req GenerateRequest, content string, latency time.Duration) {
	if p.logger == nil || !p.debugMode {
		return
	}
	p.logger.Debug("llm_api_response",
		zap.String("operation", req.Intent),
		zap.String("model", req.ModelKey),
		zap.Int("response_length", len(content)),
		zap.String("response_preview", SanitizeResponse(content, true)),
		zap.String("user_id", ExtractUserID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
}

// Generate performs one completion call.
func (p *OpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	params := p.buildParams(req)
	p.logRequest(ctx, req)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)

	if err != nil {
		p.logError(ctx, req, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	p.logResponse(ctx, req, choice.Message.Content, latency)

	return &GenerateResponse{
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// Stream generates and delivers content chunks to the callback.
func (p *OpenAIAdapter) Stream(ctx context.Context, req GenerateRequest, onChunk func(string)) (*GenerateResponse, error) {
	params := p.buildParams(req)
	p.logRequest(ctx, req)

	start := time.Now()
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(chunk.Choices[0].Delta.Content)
		}
	}
	latency := time.Since(start)

	if err := stream.Err(); err != nil {
		p.logError(ctx, req, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to stream: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to stream: %w", err)
	}

	if len(acc.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := acc.Choices[0]
	p.logResponse(ctx, req, choice.Message.Content, latency)

	return &GenerateResponse{
		Content:      choice.Message.Content,
		FinishReason: mapFinishReason(choice.FinishReason),
		Usage: TokenUsage{
			Prompt:     int(acc.Usage.PromptTokens),
			Completion: int(acc.Usage.CompletionTokens),
			Total:      int(acc.Usage.TotalTokens),
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishError
	}
}

// RegisterOpenAI registers the OpenAI adapter with the registry
func RegisterOpenAI(registry *Registry, logger *zap.Logger) {
	registry.Register(OpenAIProviderName, func(config map[string]string) (Adapter, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}
		baseURL := config["base_url"]
		debugMode := config["debug"] == "true"
		return NewOpenAIAdapterWithLogger(apiKey, baseURL, logger, debugMode), nil
	})
}
