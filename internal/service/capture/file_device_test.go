package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
)

func TestFileDeviceMissingFile(t *testing.T) {
	device := FileDevice{Path: filepath.Join(t.TempDir(), "missing.webm")}
	if _, err := device.Acquire(context.Background()); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestFileDeviceWithoutPathIsUnsupported(t *testing.T) {
	if _, err := (FileDevice{}).Acquire(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestRecorderCapturesFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.webm")
	content := []byte("pretend this is opus in webm")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}

	rec := NewRecorder(FileDevice{Path: path, ChunkBytes: 8, ChunkInterval: time.Millisecond}, Options{SampleInterval: time.Millisecond})
	clips := make(chan speechmodel.Clip, 1)
	rec.OnClip(func(c speechmodel.Clip) { clips <- c })

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	rec.Stop()

	select {
	case clip := <-clips:
		if string(clip.Data) != string(content) {
			t.Fatalf("unexpected clip data: %q", clip.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("expected clip")
	}
}

func TestApproximateLevel(t *testing.T) {
	if got := approximateLevel([]byte{128, 128}); got != 0 {
		t.Fatalf("expected silence, got %f", got)
	}
	if got := approximateLevel([]byte{0, 255}); got < 0.99 || got > 1 {
		t.Fatalf("expected near full scale, got %f", got)
	}
	if got := approximateLevel(nil); got != 0 {
		t.Fatalf("expected zero for empty chunk, got %f", got)
	}
}
