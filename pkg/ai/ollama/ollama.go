// Package ollama implements the ai.Client interface against a local or
// remote Ollama server.
package ollama

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"context"

	"github.com/trestle-legal/docket/pkg/ai"

	"github.com/ollama/ollama/api"
)

// ExtractionClient talks to an Ollama server for billing extraction.
type ExtractionClient struct {
	model string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	client *api.Client
}

// NewExtractionClientParams configures an Ollama-backed client.
type NewExtractionClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewExtractionClient connects to the Ollama server at BaseURL, or the
// default local endpoint when empty.
func NewExtractionClient(params NewExtractionClientParams) (*ExtractionClient, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if params.APIKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{"Authorization": "Bearer " + params.APIKey},
				rt:      http.DefaultTransport,
			},
		}
	}

	return &ExtractionClient{
		model:  params.Model,
		client: api.NewClient(u, httpClient),
	}, nil
}

// GenerateCompletion sends a single-turn prompt and returns plain text.
func (c *ExtractionClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.2,
	}
	for _, o := range opts {
		o(&options)
	}

	req := c.buildRequest(options, prompt, nil)

	final, err := c.collect(ctx, req)
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

// GenerateCompletionWithFormat constrains the response to the JSON
// schema of out and unmarshals into it.
func (c *ExtractionClient) GenerateCompletionWithFormat(
	ctx context.Context,
	_ string,
	_ string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := ai.GenerateOptions{
		Model:       c.model,
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}
	req := c.buildRequest(options, prompt, json.RawMessage(formatBytes))

	final, err := c.collect(ctx, req)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(final.Message.Content, out)
}

// GetMetrics returns the accumulated usage metrics.
func (c *ExtractionClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

// ResetMetrics zeroes the accumulated usage metrics.
func (c *ExtractionClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

func (c *ExtractionClient) buildRequest(
	options ai.GenerateOptions,
	prompt string,
	format json.RawMessage,
) *api.ChatRequest {
	stream := false

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	return &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}
}

func (c *ExtractionClient) collect(ctx context.Context, req *api.ChatRequest) (api.ChatResponse, error) {
	var final api.ChatResponse
	err := c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	})
	if err != nil {
		return final, err
	}

	c.metricsLock.Lock()
	c.metrics.InputTokens += final.Metrics.PromptEvalCount
	c.metrics.OutputTokens += final.Metrics.EvalCount
	c.metrics.TotalTokens += final.Metrics.PromptEvalCount + final.Metrics.EvalCount
	c.metrics.DurationMs += final.Metrics.TotalDuration.Milliseconds()
	c.metricsLock.Unlock()

	return final, nil
}
