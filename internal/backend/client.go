package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"PickleChat/internal/cache"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Options carries the optional sampling parameters of a request
type Options struct {
	Temperature     *float64
	PresencePenalty *float64
	MaxTokens       int
}

// Float returns a pointer to v, for Options fields
func Float(v float64) *float64 {
	return &v
}

// ClientConfig holds the connection settings of the completion service
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client calls an OpenAI-compatible chat-completion endpoint
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	duration   metric.Float64Histogram
	cache      *cache.Store
}

// ClientOption customises a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTelemetry sets the tracer and meter; the global providers are used otherwise
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
		if meter != nil {
			c.meter = meter
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithCache enables response caching keyed on the full request
func WithCache(store *cache.Store) ClientOption {
	return func(c *Client) { c.cache = store }
}

// NewClient creates a completion client
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		tracer:     otel.Tracer("picklechat"),
		meter:      otel.Meter("picklechat"),
	}
	for _, opt := range opts {
		opt(c)
	}

	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		c.logger.Warn("failed to create duration histogram", "error", err)
	}
	c.duration = histogram
	return c
}

// Complete sends messages to the completion service and returns the first choice's content
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	ctx, span := c.tracer.Start(ctx, "chat_completion_call")
	defer span.End()

	reqBody := ChatRequest{
		Messages:        messages,
		Model:           c.cfg.Model,
		Temperature:     opts.Temperature,
		PresencePenalty: opts.PresencePenalty,
		MaxTokens:       opts.MaxTokens,
	}
	span.SetAttributes(
		attribute.String("llm.model", reqBody.Model),
		attribute.Int("llm.messages", len(messages)),
	)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var cacheKey string
	if c.cache != nil {
		cacheKey = cache.GenerateCacheKey(string(jsonData))
		if cached, ok := c.cache.Get(cacheKey); ok {
			c.logger.Info("cache hit", "key", cacheKey[:16])
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	reply, err := c.post(ctx, jsonData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if c.cache != nil {
		c.cache.Put(cacheKey, reply)
		c.logger.Info("cached response", "key", cacheKey[:16])
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, jsonData []byte) (string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("http.status_code", strconv.Itoa(resp.StatusCode))))
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp ChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.recordMetrics(ctx, apiResp.Usage)

	if len(apiResp.Choices) > 0 {
		return apiResp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("empty response from completion service")
}

// recordMetrics records OpenTelemetry metrics from usage data
func (c *Client) recordMetrics(ctx context.Context, usage map[string]interface{}) {
	if usage == nil {
		return
	}

	for key, value := range usage {
		if intVal, ok := value.(float64); ok {
			counter, err := c.meter.Int64Counter(
				fmt.Sprintf("llm.usage.%s", key),
				metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
			)
			if err != nil {
				c.logger.Warn("failed to create counter", "key", key, "error", err)
				continue
			}
			counter.Add(ctx, int64(intVal))
		}
	}
}
