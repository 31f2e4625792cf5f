package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/vera/client/internal/config"
	"github.com/zhouzirui/vera/client/internal/model/chat"
)

// Responder produces the assistant's reply to userText given prior history.
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, userText string) (string, error)
}

// Service answers through an eino chain backed by a chat model.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
}

// NewService compiles the prompt -> model chain.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg config.AIConfig) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable, systemPrompt: cfg.SystemPrompt}, nil
}

// NewServiceFromConfig builds the Ark model from cfg and wraps it.
func NewServiceFromConfig(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewService(ctx, chatModel, cfg)
}

// Reply runs the chain for one turn.
func (s *Service) Reply(ctx context.Context, history []chat.Message, userText string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  s.systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   userText,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[assistant] generated response length=%d", len(response.Content))
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}

// EchoResponder answers without a model; used when Ark is not configured.
type EchoResponder struct{}

func (EchoResponder) Reply(_ context.Context, history []chat.Message, userText string) (string, error) {
	turns := 1
	for _, msg := range history {
		if msg.Role == chat.RoleUser {
			turns++
		}
	}
	return fmt.Sprintf("You said: %s (turn %d)", strings.TrimSpace(userText), turns), nil
}
