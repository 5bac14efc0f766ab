// Package classify extracts a resolution type, domain, and deadline from
// market title/description text through an OpenAI-compatible chat
// completions endpoint. The model's output is schema-validated; invalid
// responses are retried a bounded number of times before the market is
// reported as unclassifiable.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/polyharvest/polyharvest/internal/transport"
)

// Resolution types. Type 1 resolves on a single calendar date known in
// advance, type 2 over a range or an unknowable date, and U carries no
// explicit time expression at all.
const (
	TypeSingleDate = "1"
	TypeRange      = "2"
	TypeUndated    = "U"
)

var validDomains = map[string]bool{
	"finance":  true,
	"sports":   true,
	"politics": true,
	"misc":     true,
}

// Classification is a validated model verdict for one market.
type Classification struct {
	Type   string `json:"type"`
	Domain string `json:"domain"`
	// Date is the occurrence or deadline in DD/MM/YYYY form, empty for
	// type U.
	Date string `json:"date"`
}

// deadlineLayout is the date form the model is instructed to emit.
const deadlineLayout = "02/01/2006"

// Valid reports whether the verdict satisfies the output schema: a known
// type and domain, a well-formed date, and the type/date pairing rule
// (type U carries no date, every other type must carry one).
func (c Classification) Valid() bool {
	if c.Type != TypeSingleDate && c.Type != TypeRange && c.Type != TypeUndated {
		return false
	}
	if !validDomains[c.Domain] {
		return false
	}
	if c.Date != "" {
		if _, err := time.Parse(deadlineLayout, c.Date); err != nil {
			return false
		}
	}
	if c.Date == "" && c.Type != TypeUndated {
		return false
	}
	if c.Date != "" && c.Type == TypeUndated {
		return false
	}
	return true
}

// Client drives the chat completions endpoint.
type Client struct {
	apiBase     string
	apiKey      string
	model       string
	maxAttempts int
	retryDelay  time.Duration
	http        *transport.Client
	logger      *slog.Logger

	// sleep is swapped out by tests.
	sleep func(context.Context, time.Duration) error
}

// Options configures a classification client.
type Options struct {
	APIBase     string
	APIKey      string
	Model       string
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

// NewClient creates a classification client over the shared transport.
func NewClient(httpClient *transport.Client, opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		apiBase:     opts.APIBase,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		http:        httpClient,
		logger:      opts.Logger.With("component", "classify"),
		sleep:       sleepCtx,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ErrInvalidResponse reports that the model never produced a
// schema-conforming verdict within the attempt budget.
var ErrInvalidResponse = fmt.Errorf("classify: model response failed schema validation")

// Classify asks the model for a verdict on one market's title and
// description. Transport failures propagate; schema-invalid responses are
// retried with a delay and surface as ErrInvalidResponse once the budget
// is spent.
func (c *Client) Classify(ctx context.Context, title, description string) (Classification, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Title: %s\nDescription: %s\n", title, description)},
		},
		MaxTokens: 64,
	}
	req.ResponseFormat.Type = "json_object"

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return Classification{}, err
			}
		}

		var resp chatResponse
		if err := c.http.PostJSON(ctx, c.apiBase+"/chat/completions", headers, req, &resp); err != nil {
			return Classification{}, fmt.Errorf("classify %q: %w", title, err)
		}
		if len(resp.Choices) == 0 {
			c.logger.Warn("empty completion", "title", title, "attempt", attempt)
			continue
		}

		verdict, ok := parseVerdict(resp.Choices[0].Message.Content)
		if !ok {
			c.logger.Warn("schema-invalid completion", "title", title, "attempt", attempt)
			continue
		}
		return verdict, nil
	}
	return Classification{}, ErrInvalidResponse
}

// parseVerdict decodes and validates one completion body.
func parseVerdict(content string) (Classification, bool) {
	var v Classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return Classification{}, false
	}
	v.Type = strings.TrimSpace(v.Type)
	v.Domain = strings.TrimSpace(v.Domain)
	v.Date = strings.TrimSpace(v.Date)
	if !v.Valid() {
		return Classification{}, false
	}
	return v, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
