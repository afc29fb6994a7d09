package app

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

type ChatAPI interface {
	AskChatBot(ctx context.Context, token, input string, history []ChatMessage) (string, error)
}

// Ask sends input with the stored history and records both turns once the
// bot replied. The history is left as is on failure.
func Ask(ctx context.Context, api ChatAPI, state *AppContext, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyMessage
	}
	reply, err := api.AskChatBot(ctx, state.Token, input, state.ChatHistory)
	if err != nil {
		return "", errors.Wrap(err, "ask chatbot")
	}
	state.ChatHistory = append(state.ChatHistory,
		ChatMessage{Role: RoleUser, Text: input},
		ChatMessage{Role: RoleBot, Text: reply},
	)
	return reply, nil
}
