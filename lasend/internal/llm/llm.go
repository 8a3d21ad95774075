// Package llm turns correction, validation and dialect requests into model
// prompts and parses the replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/lasen/correction"
)

// Provider generates a completion for a single prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (f ProviderFunc) Name() string { return "func" }

// ErrEmptyReply is returned when the model answers with no usable text.
var ErrEmptyReply = errors.New("llm: empty reply")

// Client runs the three lasen prompts against a Provider.
type Client struct {
	p        Provider
	logger   *slog.Logger
	sanitize *bluemonday.Policy
}

// NewClient wraps p. A nil logger uses slog.Default().
func NewClient(p Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{p: p, logger: logger, sanitize: bluemonday.StrictPolicy()}
}

// Correct returns the corrected text. Blank input is returned unchanged
// without calling the model.
func (c *Client) Correct(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	out, err := c.p.Generate(ctx, correctPrompt(text))
	if err != nil {
		return "", fmt.Errorf("llm: correct: %w", err)
	}
	return c.cleanText(out)
}

// Convert rewrites text in dialect d.
func (c *Client) Convert(ctx context.Context, text string, d correction.Dialect) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	out, err := c.p.Generate(ctx, dialectPrompt(text, d))
	if err != nil {
		return "", fmt.Errorf("llm: convert: %w", err)
	}
	return c.cleanText(out)
}

// Validate returns the erroneous spans the model reports. Malformed entries
// and ranges outside text are dropped. Blank input yields no ranges.
func (c *Client) Validate(ctx context.Context, text string) ([]correction.FlaggedRange, error) {
	if strings.TrimSpace(text) == "" {
		return []correction.FlaggedRange{}, nil
	}
	out, err := c.p.Generate(ctx, validatePrompt(text))
	if err != nil {
		return nil, fmt.Errorf("llm: validate: %w", err)
	}
	raw := ExtractJSON(out)
	ranges, err := correction.DecodeIncorrectWords([]byte(raw))
	if err != nil {
		c.logger.Debug("llm: unparseable validation reply", "reply", out, "error", err)
		return nil, fmt.Errorf("llm: validate: %w", err)
	}
	n := correction.Len(text)
	kept := ranges[:0]
	for _, r := range ranges {
		if r.Within(n) {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// cleanText strips code fences, surrounding quotes and any markup from a
// free-text reply.
func (c *Client) cleanText(out string) (string, error) {
	s := strings.TrimSpace(StripFence(out))
	s = strings.TrimSpace(html.UnescapeString(c.sanitize.Sanitize(s)))
	s = trimQuotes(s)
	if s == "" {
		return "", ErrEmptyReply
	}
	return s, nil
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)\\n?```")

// StripFence returns the body of the first fenced code block in s, or s.
func StripFence(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractJSON returns the JSON object in a model reply: the fenced block
// body if there is one, else the span from the first '{' to the last '}'.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(StripFence(s))
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i >= 0 && j > i {
		return s[i : j+1]
	}
	return s
}

func trimQuotes(s string) string {
	for _, q := range [][2]string{{`"`, `"`}, {"«", "»"}, {"“", "”"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
