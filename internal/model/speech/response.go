package speech

import (
	"encoding/json"
	"strings"
)

// TranscriptKeys lists the accepted result fields in order of preference.
var TranscriptKeys = []string{"text", "transcript", "transcription", "result"}

// TranscriptionResponse 语音识别响应。不同后端返回的字段名不一致，按 TranscriptKeys 顺序取第一个非空值。
type TranscriptionResponse map[string]json.RawMessage

// Text returns the first non-empty string found under TranscriptKeys.
func (r TranscriptionResponse) Text() string {
	for _, key := range TranscriptKeys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
