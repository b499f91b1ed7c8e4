// Package whisper provides whisper.cpp-backed speech-to-text transcribers.
//
// Two implementations are available:
//
//   - Provider connects to a running whisper-server binary (which exposes a
//     REST API at POST /inference) and submits each voice clip as a batch
//     inference request.
//   - NativeProvider (native.go) uses the whisper.cpp CGO bindings directly,
//     eliminating HTTP overhead; the model file must be available locally
//     and libwhisper.a linkable.
//
// Both operate per clip: the segmentation layer has already bounded each
// utterance, so there is no buffering or silence detection here.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, clip)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage pins the language code sent to the whisper.cpp server (e.g.,
// "en", "de"). When empty the server auto-detects the language per clip —
// this is the default, since the pipeline records the detected language on
// every voice message.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the default HTTP client (30 s timeout). Useful for
// tests and for deployments that need custom transport settings.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Transcriber backed by a whisper.cpp HTTP server.
// It holds no per-clip state and is safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse mirrors the whisper-server JSON response. Segment-level
// fields are optional and depend on the server's response_format.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

// Transcribe encodes the clip as a WAV file, POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data, and maps the response to an
// stt.Result. Confidence is derived from per-segment no-speech probabilities
// when the server reports them; otherwise it is 0.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Signal) (stt.Result, error) {
	pcm := audio.FloatToPCM16(clip.Samples)
	wav := audio.EncodeWAV(pcm, clip.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write response_format field: %w", err)
	}

	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var ir inferenceResponse
	if err := json.Unmarshal(data, &ir); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Result{
		Text:       strings.TrimSpace(ir.Text),
		Language:   normalizeLanguage(ir.Language),
		Confidence: confidenceFromSegments(ir),
	}, nil
}

// confidenceFromSegments averages the per-segment no-speech probabilities and
// inverts the mean: a clip whose segments are unlikely to be silence gets a
// confidence near 1. Returns 0 when the server reports no segments.
func confidenceFromSegments(ir inferenceResponse) float64 {
	if len(ir.Segments) == 0 {
		return 0
	}
	var sum float64
	for _, seg := range ir.Segments {
		sum += seg.NoSpeechProb
	}
	return 1.0 - sum/float64(len(ir.Segments))
}

// normalizeLanguage maps an empty language field to "unknown".
func normalizeLanguage(lang string) string {
	if lang == "" {
		return "unknown"
	}
	return lang
}
