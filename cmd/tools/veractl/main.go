package main

import (
	"context"
	"flag"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/vera/client/internal/config"
	speechmodel "github.com/zhouzirui/vera/client/internal/model/speech"
	"github.com/zhouzirui/vera/client/internal/service/capture"
	"github.com/zhouzirui/vera/client/internal/service/conversation"
	"github.com/zhouzirui/vera/client/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: chat、asr 或 record")
	text := flag.String("text", "", "chat 模式发送的文本")
	session := flag.String("session", "", "chat 模式沿用的会话令牌，留空则新建会话")
	audioPath := flag.String("audio", "", "asr/record 模式的音频文件路径")
	mimeType := flag.String("mime", "", "音频 MIME 类型，默认根据扩展名推断")
	duration := flag.Duration("duration", 2*time.Second, "record 模式的录音时长")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "chat" && *mode != "asr" && *mode != "record" {
		flag.Usage()
		log.Fatal("请通过 -mode=chat、-mode=asr 或 -mode=record 指定测试模式")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "chat":
		runChat(ctx, cfg, *text, *session)
	case "asr":
		runASR(ctx, cfg, *audioPath, *mimeType)
	case "record":
		runRecord(ctx, cfg, *audioPath, *mimeType, *duration)
	}
}

func runChat(ctx context.Context, cfg *config.Config, text, session string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("chat 模式需要通过 -text 提供消息内容")
	}

	client := conversation.NewClient(cfg.Assistant)
	log.Printf("发送消息: session=%q", session)

	reply, err := client.SendTurn(ctx, text, session)
	if err != nil {
		log.Fatalf("对话调用失败: %v", err)
	}
	log.Printf("助手回复: %q session=%q", reply.Text, reply.SessionToken)
}

func runASR(ctx context.Context, cfg *config.Config, audioPath, mimeType string) {
	if audioPath == "" {
		log.Fatal("asr 模式需要通过 -audio 指定音频文件路径")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	clip := speechmodel.Clip{
		Data:      data,
		MimeType:  resolveMime(audioPath, mimeType),
		CreatedAt: time.Now(),
	}
	transcribe(ctx, cfg, clip)
}

// runRecord 通过录音子系统回放文件，再将结果转写
func runRecord(ctx context.Context, cfg *config.Config, audioPath, mimeType string, duration time.Duration) {
	if audioPath == "" {
		audioPath = cfg.Capture.Source
	}

	device := capture.FileDevice{
		Path:          audioPath,
		ChunkBytes:    cfg.Capture.ChunkBytes,
		ChunkInterval: cfg.Capture.ChunkInterval,
	}
	recorder := capture.NewRecorder(device, capture.Options{
		SampleInterval: cfg.Capture.SampleInterval,
		MimeType:       resolveMime(audioPath, mimeType),
	})
	defer recorder.Close()

	clips := make(chan speechmodel.Clip, 1)
	recorder.OnClip(func(clip speechmodel.Clip) { clips <- clip })

	if err := recorder.Start(ctx); err != nil {
		if capErr := capture.Classify(err); capErr != nil {
			log.Fatalf("录音启动失败 (%s): %s", capErr.Kind, capErr.Message())
		}
		log.Fatalf("录音启动失败: %v", err)
	}

	log.Printf("录音中: %s", duration)
	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}
	recorder.Stop()

	select {
	case clip := <-clips:
		log.Printf("录音结束: bytes=%d duration=%s", len(clip.Data), clip.Duration)
		transcribe(ctx, cfg, clip)
	case <-ctx.Done():
		log.Fatalf("等待录音结果超时: %v", ctx.Err())
	}
}

func transcribe(ctx context.Context, cfg *config.Config, clip speechmodel.Clip) {
	client := speech.NewClient(cfg.Assistant)
	log.Printf("开始转写: bytes=%d mime=%s", len(clip.Data), clip.MimeType)

	text, err := client.Transcribe(ctx, clip)
	if err != nil {
		log.Fatalf("转写失败: %v", err)
	}
	log.Printf("转写成功: text=%q", text)
}

func resolveMime(path, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); guessed != "" {
		return guessed
	}
	return speechmodel.DefaultMimeType
}
