// Package speech implements the chat.Synthesizer and chat.Transcriber
// contracts against the ElevenLabs REST API.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"

	// DefaultVoiceID and the model ids match the production voice setup.
	DefaultVoiceID      = "JBFqnCBsd6RMkjVDRZzb"
	DefaultTTSModelID   = "eleven_multilingual_v2"
	DefaultSTTModelID   = "scribe_v1"
	DefaultOutputFormat = "mp3_44100_128"
)

// Client talks to the ElevenLabs speech APIs. There is no official Go SDK;
// the endpoints are small enough to call directly.
type Client struct {
	baseURL    string
	apiKey     string
	voiceID    string
	ttsModelID string
	sttModelID string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithVoice overrides the synthesis voice.
func WithVoice(voiceID string) Option {
	return func(c *Client) {
		if voiceID != "" {
			c.voiceID = voiceID
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds an ElevenLabs client. The API key is required.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: missing API key")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		voiceID:    DefaultVoiceID,
		ttsModelID: DefaultTTSModelID,
		sttModelID: DefaultSTTModelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize converts text to binary audio. Callers must not pass empty or
// whitespace-only text; the API rejects it with a 422.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: refusing to synthesize empty text")
	}

	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": c.ttsModelID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "elevenlabs: encode tts request")
	}

	url := c.baseURL + "/v1/text-to-speech/" + c.voiceID + "?output_format=" + DefaultOutputFormat
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "elevenlabs: build tts request")
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "elevenlabs: tts request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("elevenlabs: tts status %d: %s", resp.StatusCode, string(msg))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "elevenlabs: read tts response")
	}
	log.Debug().Int("audio_bytes", len(audio)).Msg("speech synthesis completed")
	return audio, nil
}

// Transcribe converts binary audio (webm/mp3) to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("elevenlabs: empty audio")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", errors.Wrap(err, "elevenlabs: build stt form")
	}
	if _, err := part.Write(audio); err != nil {
		return "", errors.Wrap(err, "elevenlabs: write stt form")
	}
	if err := w.WriteField("model_id", c.sttModelID); err != nil {
		return "", errors.Wrap(err, "elevenlabs: write stt form")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, "elevenlabs: close stt form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech-to-text", &buf)
	if err != nil {
		return "", errors.Wrap(err, "elevenlabs: build stt request")
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "elevenlabs: stt request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.Errorf("elevenlabs: stt status %d: %s", resp.StatusCode, string(msg))
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, "elevenlabs: decode stt response")
	}
	return result.Text, nil
}
