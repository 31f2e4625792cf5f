package speech

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, body string) TranscriptionResponse {
	t.Helper()
	var resp TranscriptionResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	return resp
}

func TestTranscriptionResponsePrefersText(t *testing.T) {
	resp := decode(t, `{"transcript":"second","text":"first"}`)
	if got := resp.Text(); got != "first" {
		t.Fatalf("expected first, got %q", got)
	}
}

func TestTranscriptionResponseFallsBackPastEmptyValues(t *testing.T) {
	resp := decode(t, `{"text":"  ","transcript":null,"transcription":42,"result":"buy milk"}`)
	if got := resp.Text(); got != "buy milk" {
		t.Fatalf("expected buy milk, got %q", got)
	}
}

func TestTranscriptionResponseNoUsableField(t *testing.T) {
	resp := decode(t, `{"status":"ok"}`)
	if got := resp.Text(); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}
