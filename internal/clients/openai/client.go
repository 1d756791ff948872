package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/himanstore/dmsales-backend/internal/pkg/httpx"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
)

// ImageInput is the normalized multimodal image input used by Client.
type ImageInput struct {
	// Can be https://... or data:image/...;base64,...
	ImageURL string
	// Optional. Some models may ignore; kept for compatibility.
	Detail string // "low" | "high"
}

// ToolDef declares one callable function exposed to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// ToolHandler executes a tool call and returns the output the model sees.
type ToolHandler func(ctx context.Context, call ToolCall) (string, error)

// ChatResult is the outcome of a tool-calling loop.
type ChatResult struct {
	Text      string
	ToolCalls []ToolCall
	Turns     int
}

// ErrToolLoopExceeded is returned when the model keeps requesting tools
// past the configured turn ceiling.
var ErrToolLoopExceeded = errors.New("tool loop exceeded max turns")

// Client is the OpenAI API client used by the rest of the backend.
type Client interface {
	// Structured outputs (json_schema)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Structured outputs with image inputs
	GenerateJSONWithImages(ctx context.Context, system string, user string, images []ImageInput, schemaName string, schema map[string]any) (map[string]any, error)

	// Plain text (no schema)
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// Multimodal: user prompt + images -> plain text
	GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error)

	// Function-calling loop: the model may request tools until it emits a
	// final text answer or maxTurns is reached.
	ChatWithTools(ctx context.Context, system string, user string, tools []ToolDef, handler ToolHandler, maxTurns int) (ChatResult, error)

	Model() string
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int

	temperature        *float64
	disableTemperature bool
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4.1"
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 4
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	disableTemperature := false
	tempPtr := (*float64)(nil)
	temp := 0.2
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		low := strings.ToLower(v)
		if low == "off" || low == "none" || low == "false" {
			disableTemperature = true
		} else if f, err := strconv.ParseFloat(v, 64); err == nil {
			temp = f
		}
	}
	if !disableTemperature {
		tempPtr = &temp
	}

	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	return &client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		temperature:        tempPtr,
		disableTemperature: disableTemperature,
	}, nil
}

// NewClientWithModel returns a client configured with the provided model
// override. It uses the same env configuration as NewClient.
func NewClientWithModel(log *logger.Logger, modelOverride string) (Client, error) {
	c, err := NewClient(log)
	if err != nil {
		return nil, err
	}
	if modelOverride == "" {
		return c, nil
	}
	if cc, ok := c.(*client); ok {
		cc.model = strings.TrimSpace(modelOverride)
	}
	return c, nil
}

func (c *client) Model() string { return c.model }

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	return strings.Contains(msg, "unsupported parameter") ||
		strings.Contains(msg, "unknown parameter") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "does not support") ||
		strings.Contains(msg, "only the default")
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 10*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// doWithTempFallback retries exactly once without temperature if the model
// rejects it.
func (c *client) doWithTempFallback(ctx context.Context, req *responsesRequest, out any) error {
	err := c.do(ctx, "POST", "/v1/responses", req, out)
	if err == nil {
		return nil
	}
	if req.Temperature == nil || !isUnsupportedTemperatureParam(err) {
		return err
	}
	req.Temperature = nil
	return c.do(ctx, "POST", "/v1/responses", req, out)
}

func (c *client) applyTemperature(req *responsesRequest) {
	if req == nil || c.disableTemperature || c.temperature == nil {
		return
	}
	req.Temperature = c.temperature
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model string `json:"model"`

	// Input items: role/content messages, function_call echoes and
	// function_call_output items.
	Input []any `json:"input"`

	Tools []map[string]any `json:"tools,omitempty"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type responseOutputItem struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content,omitempty"`

	// function_call items
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responsesResponse struct {
	Output  []responseOutputItem `json:"output"`
	Refusal string               `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func extractToolCalls(resp responsesResponse) []ToolCall {
	var calls []ToolCall
	for _, item := range resp.Output {
		if item.Type == "function_call" {
			calls = append(calls, ToolCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	return calls
}

func messageItem(role string, content any) map[string]any {
	return map[string]any{"role": role, "content": content}
}

func imageContent(user string, images []ImageInput) []map[string]any {
	content := make([]map[string]any, 0, 1+len(images))
	content = append(content, map[string]any{
		"type": "input_text",
		"text": user,
	})
	for _, img := range images {
		u := strings.TrimSpace(img.ImageURL)
		if u == "" {
			continue
		}
		item := map[string]any{
			"type":      "input_image",
			"image_url": u,
		}
		if strings.TrimSpace(img.Detail) != "" {
			item["detail"] = strings.TrimSpace(img.Detail)
		}
		content = append(content, item)
	}
	return content
}

func (c *client) generate(ctx context.Context, req *responsesRequest) (responsesResponse, error) {
	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, req, &resp); err != nil {
		return resp, err
	}
	if resp.Refusal != "" {
		return resp, fmt.Errorf("model refused: %s", resp.Refusal)
	}
	return resp, nil
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}

	req := responsesRequest{
		Model: c.model,
		Input: []any{
			messageItem("system", system),
			messageItem("user", user),
		},
	}
	c.applyTemperature(&req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	resp, err := c.generate(ctx, &req)
	if err != nil {
		return nil, err
	}
	return parseJSONOutput(resp)
}

func (c *client) GenerateJSONWithImages(ctx context.Context, system string, user string, images []ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	content := imageContent(user, images)
	if len(content) == 1 {
		return c.GenerateJSON(ctx, system, user, schemaName, schema)
	}

	req := responsesRequest{
		Model: c.model,
		Input: []any{
			messageItem("system", system),
			messageItem("user", content),
		},
	}
	c.applyTemperature(&req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	resp, err := c.generate(ctx, &req)
	if err != nil {
		return nil, err
	}
	return parseJSONOutput(resp)
}

func parseJSONOutput(resp responsesResponse) (map[string]any, error) {
	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := responsesRequest{
		Model: c.model,
		Input: []any{
			messageItem("system", system),
			messageItem("user", user),
		},
	}
	c.applyTemperature(&req)

	resp, err := c.generate(ctx, &req)
	if err != nil {
		return "", err
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

func (c *client) GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error) {
	content := imageContent(user, images)
	if len(content) == 1 {
		return c.GenerateText(ctx, system, user)
	}

	req := responsesRequest{
		Model: c.model,
		Input: []any{
			messageItem("system", system),
			messageItem("user", content),
		},
	}
	c.applyTemperature(&req)

	resp, err := c.generate(ctx, &req)
	if err != nil {
		return "", err
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

func (c *client) ChatWithTools(ctx context.Context, system string, user string, tools []ToolDef, handler ToolHandler, maxTurns int) (ChatResult, error) {
	var result ChatResult
	if maxTurns <= 0 {
		maxTurns = 8
	}

	toolSpecs := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		toolSpecs = append(toolSpecs, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
			"strict":      true,
		})
	}

	input := []any{
		messageItem("system", system),
		messageItem("user", user),
	}

	for turn := 0; turn < maxTurns; turn++ {
		req := responsesRequest{
			Model: c.model,
			Input: input,
			Tools: toolSpecs,
		}
		c.applyTemperature(&req)

		resp, err := c.generate(ctx, &req)
		if err != nil {
			return result, err
		}
		result.Turns = turn + 1

		calls := extractToolCalls(resp)
		if len(calls) == 0 {
			result.Text = extractOutputText(resp)
			if strings.TrimSpace(result.Text) == "" {
				return result, fmt.Errorf("no output_text found in response")
			}
			return result, nil
		}

		for _, call := range calls {
			result.ToolCalls = append(result.ToolCalls, call)

			// Echo the call back so the model sees its own request
			// alongside the output.
			input = append(input, map[string]any{
				"type":      "function_call",
				"call_id":   call.CallID,
				"name":      call.Name,
				"arguments": call.Arguments,
			})

			output, hErr := handler(ctx, call)
			if hErr != nil {
				c.log.Warn("Tool handler failed",
					"tool", call.Name,
					"error", hErr.Error(),
				)
				output = fmt.Sprintf(`{"error":%q}`, hErr.Error())
			}
			input = append(input, map[string]any{
				"type":    "function_call_output",
				"call_id": call.CallID,
				"output":  output,
			})
		}
	}

	return result, ErrToolLoopExceeded
}
