package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/dictator/internal/config"
)

const (
	transcribeTimeout  = 120 * time.Second
	modelsCheckTimeout = 5 * time.Second
)

var (
	// ErrFileNotFound is returned when the audio file to transcribe is missing.
	ErrFileNotFound = errors.New("audio file not found")
	// ErrModelListingNotSupported is returned when the API has no usable
	// /v1/models endpoint.
	ErrModelListingNotSupported = errors.New("model listing not supported by this API")
)

// APIError is a non-2xx answer from the transcription API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Transcriber turns a recorded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
	SupportsModelsEndpoint(ctx context.Context) bool
	ListModels(ctx context.Context) ([]Model, error)
	UpdateConfig(cfg Settings)
}

// Model is one entry of the /v1/models listing.
type Model struct {
	ID string `json:"id"`
}

// Settings is the part of the app config the client needs.
type Settings struct {
	APIURL       string
	APIKey       string
	DefaultModel string
}

// SettingsFrom extracts client settings from the app config.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		APIURL:       cfg.APIURL,
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.DefaultModel,
	}
}

// Client talks to an OpenAI-compatible transcription API.
type Client struct {
	mu       sync.RWMutex
	settings Settings

	http  *http.Client
	check *http.Client
	log   zerolog.Logger
}

// New creates a client for the given settings.
func New(settings Settings, log zerolog.Logger) *Client {
	return &Client{
		settings: settings,
		http:     &http.Client{Timeout: transcribeTimeout},
		check:    &http.Client{Timeout: modelsCheckTimeout},
		log:      log,
	}
}

// UpdateConfig replaces the settings used by subsequent requests.
func (c *Client) UpdateConfig(settings Settings) {
	c.mu.Lock()
	c.settings = settings
	c.mu.Unlock()
}

func (c *Client) current() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Transcribe uploads the WAV file at path and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	s := c.current()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(path)))
	header.Set("Content-Type", "audio/wav")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	if s.DefaultModel != "" {
		if err := writer.WriteField("model", s.DefaultModel); err != nil {
			return "", fmt.Errorf("write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(s, "/v1/audio/transcriptions"), &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	authorize(req, s)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	c.log.Info().
		Str("file", filepath.Base(path)).
		Str("model", s.DefaultModel).
		Dur("elapsed", time.Since(start)).
		Int("chars", len(result.Text)).
		Msg("Transcription complete")

	return strings.TrimSpace(result.Text), nil
}

// SupportsModelsEndpoint reports whether GET /v1/models answers 200.
// Network failures count as unsupported.
func (c *Client) SupportsModelsEndpoint(ctx context.Context) bool {
	s := c.current()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(s, "/v1/models"), nil)
	if err != nil {
		return false
	}
	authorize(req, s)

	resp, err := c.check.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("Models endpoint unreachable")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// ListModels returns the models the API advertises.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if !c.SupportsModelsEndpoint(ctx) {
		return nil, ErrModelListingNotSupported
	}
	s := c.current()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(s, "/v1/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	authorize(req, s)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	return result.Data, nil
}

func endpoint(s Settings, path string) string {
	return strings.TrimRight(s.APIURL, "/") + path
}

func authorize(req *http.Request, s Settings) {
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
