// Package httpenc provides a VoiceEncoder backed by an HTTP speaker-encoder
// service.
//
// The service is expected to accept a WAV file at POST /embed as
// multipart/form-data and respond with JSON of the form
//
//	{"embedding": [0.012, -0.34, ...]}
//
// This matches the thin Flask/FastAPI wrappers commonly put in front of
// speaker-verification models (resemblyzer, SpeechBrain ECAPA, pyannote).
// The returned vector is L2-normalised client-side so downstream cosine
// comparisons never depend on the server's normalisation behaviour.
package httpenc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/voxtrace/pkg/audio"
	"github.com/MrWong99/voxtrace/pkg/provider/embeddings"
)

// Compile-time assertion that Encoder implements embeddings.VoiceEncoder.
var _ embeddings.VoiceEncoder = (*Encoder)(nil)

// Option is a functional option for configuring an Encoder.
type Option func(*Encoder)

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Encoder) { e.httpClient = c }
}

// Encoder implements embeddings.VoiceEncoder against an HTTP speaker-encoder
// service. It holds no per-clip state and is safe for concurrent use.
type Encoder struct {
	serverURL  string
	dimensions int
	httpClient *http.Client
}

// New creates an Encoder that connects to the speaker-encoder service at
// serverURL (e.g., "http://localhost:9090"). dimensions must match the
// vector length the service's model produces (e.g., 256 for resemblyzer,
// 192 for ECAPA-TDNN).
func New(serverURL string, dimensions int, opts ...Option) (*Encoder, error) {
	if serverURL == "" {
		return nil, errors.New("httpenc: serverURL must not be empty")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("httpenc: dimensions must be positive, got %d", dimensions)
	}
	e := &Encoder{
		serverURL:  serverURL,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Encode POSTs the clip as a WAV file to the /embed endpoint and returns the
// L2-normalised embedding vector. A vector whose length differs from the
// configured dimensions is rejected, since mixing dimensionalities would
// silently corrupt every downstream similarity comparison.
func (e *Encoder) Encode(ctx context.Context, clip audio.Signal) ([]float32, error) {
	wav := audio.EncodeWAV(audio.FloatToPCM16(clip.Samples), clip.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return nil, fmt.Errorf("httpenc: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("httpenc: write wav data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("httpenc: close multipart writer: %w", err)
	}

	endpoint := e.serverURL + "/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("httpenc: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpenc: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpenc: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpenc: read response body: %w", err)
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("httpenc: parse JSON response: %w", err)
	}
	if len(result.Embedding) != e.dimensions {
		return nil, fmt.Errorf("httpenc: server returned %d dimensions, expected %d", len(result.Embedding), e.dimensions)
	}

	return embeddings.Normalize(result.Embedding), nil
}

// Dimensions returns the configured embedding vector length.
func (e *Encoder) Dimensions() int { return e.dimensions }
