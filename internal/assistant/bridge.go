// Package assistant forwards "/ai" commands from the public channel to a
// text-generation backend and republishes the reply under the sentinel
// assistant identity.
package assistant

import (
	"context"
	"log"
	"strings"
	"time"

	"termchat/internal/chat"
	"termchat/internal/models"
	"termchat/internal/worker"
)

// CommandPrefix triggers the assistant. The match is case-insensitive and
// the prefix must be followed by the prompt text.
const CommandPrefix = "/ai"

// DiagnosticReply is inserted in place of a generated reply when the
// backend call fails. The failure itself never reaches the sender.
const DiagnosticReply = "The assistant could not be reached. Please try again later."

const generateTimeout = 2 * time.Minute

// Bridge watches sent messages for assistant commands and runs generation
// on the worker dispatcher so replies arrive through the change feed like
// any other message.
type Bridge struct {
	chat       *chat.Service
	gen        Generator
	dispatcher *worker.Dispatcher
}

// NewBridge wires the bridge to the chat service and worker pool.
func NewBridge(chatService *chat.Service, gen Generator, dispatcher *worker.Dispatcher) *Bridge {
	return &Bridge{chat: chatService, gen: gen, dispatcher: dispatcher}
}

// Prompt extracts the assistant prompt from a message body, reporting
// whether the body is an assistant command at all.
func Prompt(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < len(CommandPrefix) {
		return "", false
	}
	if !strings.EqualFold(trimmed[:len(CommandPrefix)], CommandPrefix) {
		return "", false
	}
	rest := trimmed[len(CommandPrefix):]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		// "/aid ..." is an ordinary message, not a command.
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// HandleMessage inspects a just-sent message and, when it is a public-scope
// assistant command, schedules the reply. Commands in private rooms are
// ignored. The returned bool reports whether a reply was scheduled; errors
// from the generation itself never propagate here.
func (b *Bridge) HandleMessage(msg *models.Message) bool {
	if b == nil || msg == nil || msg.IsAssistant {
		return false
	}
	if msg.RoomID != "" {
		return false
	}
	prompt, ok := Prompt(msg.Body)
	if !ok || prompt == "" {
		return false
	}

	err := b.dispatcher.Submit(func() {
		b.reply(prompt)
	})
	if err != nil {
		// Saturated pool counts as a backend failure: degrade to the
		// diagnostic reply instead of surfacing the error.
		log.Printf("assistant dispatch failed: %v", err)
		b.publishReply(DiagnosticReply)
	}
	return true
}

func (b *Bridge) reply(prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	text, err := b.gen.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			log.Printf("assistant generate failed: %v", err)
		}
		text = DiagnosticReply
	}
	b.publishReply(text)
}

func (b *Bridge) publishReply(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.chat.SendMessage(ctx, models.AssistantSender(), models.Scope{}, text); err != nil {
		log.Printf("assistant reply insert failed: %v", err)
	}
}
