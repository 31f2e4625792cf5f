package speech

import "time"

// DefaultMimeType is the container the recorder produces.
const DefaultMimeType = "audio/webm"

// Clip 一段录制完成的音频
type Clip struct {
	Data      []byte        `json:"-"`
	MimeType  string        `json:"mimeType"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}
