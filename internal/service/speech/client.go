package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/zhouzirui/vera/client/internal/config"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
)

// MaxResponseBytes bounds how much of a transcription body is read.
const MaxResponseBytes = 1 << 20

// FormField is the multipart field carrying the audio clip.
const FormField = "file"

var (
	ErrNotConfigured = errors.New("speech: transcription endpoint or api key not configured")
	ErrNetwork       = errors.New("speech: network error")
	ErrEmptyResult   = errors.New("speech: transcription returned no text")
	ErrEmptyClip     = errors.New("speech: clip contains no audio")
)

// Client uploads finished clips to the transcription endpoint.
type Client struct {
	cfg        config.AssistantConfig
	httpClient *http.Client
}

// NewClient builds a transcription client for the assistant endpoint.
func NewClient(cfg config.AssistantConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// resolveCredentials 返回规范化后的地址与凭证，缺失时返回 ErrNotConfigured。
func (c *Client) resolveCredentials() (string, string, error) {
	endpoint := strings.TrimSpace(c.cfg.TranscribeURL())
	token := strings.TrimSpace(c.cfg.APIKey)
	if endpoint == "" || token == "" {
		return "", "", ErrNotConfigured
	}
	return endpoint, token, nil
}

// Transcribe sends clip and returns the recognised text. It never retries.
func (c *Client) Transcribe(ctx context.Context, clip speechmodel.Clip) (string, error) {
	endpoint, token, err := c.resolveCredentials()
	if err != nil {
		return "", err
	}
	if clip.Empty() {
		return "", ErrEmptyClip
	}

	body, contentType, err := encodeClip(clip)
	if err != nil {
		return "", fmt.Errorf("speech: build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}

	var decoded speechmodel.TranscriptionResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}

	text := decoded.Text()
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

func encodeClip(clip speechmodel.Clip) (io.Reader, string, error) {
	mimeType := clip.MimeType
	if mimeType == "" {
		mimeType = speechmodel.DefaultMimeType
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, "recording"+extensionFor(mimeType)))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// extensionFor 从 MIME 类型推断文件扩展名
func extensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4":
		return ".m4a"
	default:
		return ".bin"
	}
}
