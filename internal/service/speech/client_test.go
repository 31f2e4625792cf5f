package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/vera/client/internal/config"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AssistantConfig{URL: srv.URL, APIKey: "secret"})
}

func sampleClip() speechmodel.Clip {
	return speechmodel.Clip{Data: []byte("webm-bytes"), MimeType: speechmodel.DefaultMimeType}
}

func TestTranscribeUploadsMultipartFile(t *testing.T) {
	var path, auth, partType, filename string
	var payload []byte

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm err: %v", err)
			return
		}
		file, header, err := r.FormFile(FormField)
		if err != nil {
			t.Errorf("FormFile err: %v", err)
			return
		}
		defer file.Close()
		partType = header.Header.Get("Content-Type")
		filename = header.Filename
		payload, _ = io.ReadAll(file)
		_, _ = w.Write([]byte(`{"text":"buy milk"}`))
	})

	text, err := client.Transcribe(context.Background(), sampleClip())
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}

	if text != "buy milk" {
		t.Fatalf("unexpected text: %q", text)
	}
	if path != "/transcribe" {
		t.Fatalf("unexpected path: %s", path)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if partType != "audio/webm" || filename != "recording.webm" {
		t.Fatalf("unexpected part: type=%s filename=%s", partType, filename)
	}
	if string(payload) != "webm-bytes" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestTranscribeFallbackKeys(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"","transcription":"from fallback"}`))
	})

	text, err := client.Transcribe(context.Background(), sampleClip())
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "from fallback" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestTranscribeEmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	})

	if _, err := client.Transcribe(context.Background(), sampleClip()); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestTranscribeNon2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := client.Transcribe(context.Background(), sampleClip()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestTranscribeNotConfigured(t *testing.T) {
	client := NewClient(config.AssistantConfig{URL: "http://127.0.0.1:1"})
	if _, err := client.Transcribe(context.Background(), sampleClip()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTranscribeRejectsEmptyClip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty clip must not reach the endpoint")
	})

	if _, err := client.Transcribe(context.Background(), speechmodel.Clip{}); !errors.Is(err, ErrEmptyClip) {
		t.Fatalf("expected ErrEmptyClip, got %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"audio/webm;codecs=opus": ".webm",
		"audio/wav":              ".wav",
		"application/unknown":    ".bin",
	}
	for in, want := range cases {
		if got := extensionFor(in); got != want {
			t.Fatalf("extensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}
