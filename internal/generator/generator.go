// Package generator turns prompts into image URLs using a remote
// text-to-image endpoint, and fetches the rendered images back for download.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://image.pollinations.ai"
	DefaultWidth   = 1024
	DefaultHeight  = 1024
)

// Generator produces a URL that resolves to an image rendered for prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationError wraps any failure to obtain an image for a prompt.
type GenerationError struct {
	Prompt string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate image: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type Options struct {
	BaseURL string
	Width   int
	Height  int
	// Verify issues a GET against the built URL so remote failures surface
	// before the URL is handed out.
	Verify bool
	// Interval is the minimum spacing between outbound requests.
	Interval time.Duration
}

// Pollinations builds prompt-encoded URLs for image.pollinations.ai style
// endpoints.
type Pollinations struct {
	httpClient *http.Client
	baseURL    string
	width      int
	height     int
	verify     bool
	limiter    *rate.Limiter
}

func NewPollinations(httpClient *http.Client, opts Options) *Pollinations {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Pollinations{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		width:      opts.Width,
		height:     opts.Height,
		verify:     opts.Verify,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// URL returns the image URL for prompt without contacting the endpoint.
func (p *Pollinations) URL(prompt string) string {
	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true",
		p.baseURL, escapeComponent(prompt), p.width, p.height)
}

// escapeComponent percent-encodes every byte outside A-Z a-z 0-9 and
// -_.!~*'() so the prompt stays a single path segment.
func escapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAlnum(rune(c)) || strings.IndexByte("-_.!~*'()", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func (p *Pollinations) Generate(ctx context.Context, prompt string) (string, error) {
	imageURL := p.URL(prompt)
	if !p.verify {
		return imageURL, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", &GenerationError{Prompt: prompt, Err: err}
	}
	body, _, err := fetch(ctx, p.httpClient, imageURL)
	if err != nil {
		return "", &GenerationError{Prompt: prompt, Err: err}
	}
	io.Copy(io.Discard, body)
	body.Close()

	return imageURL, nil
}

// Download re-fetches an image URL. The caller closes the returned body.
func (p *Pollinations) Download(ctx context.Context, imageURL string) (io.ReadCloser, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}
	return fetch(ctx, p.httpClient, imageURL)
}

var errStatus = errors.New("unexpected status")

func fetch(ctx context.Context, client *http.Client, imageURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, "", fmt.Errorf("%w %d: %s", errStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
