package models

// SenderKind discriminates the sender variants.
type SenderKind string

const (
	SenderAccount   SenderKind = "account"
	SenderSystem    SenderKind = "system"
	SenderAssistant SenderKind = "assistant"
)

// AssistantDisplayName is the fixed display name attached to messages
// authored by the synthetic assistant sender.
const AssistantDisplayName = "assistant"

// SystemDisplayName is the display name for system-authored notices.
const SystemDisplayName = "system"

// Sender is the resolved author of a message: a concrete account, the
// system, or the synthetic assistant. It is resolved once at the call
// boundary instead of threading "user id or magic string" through the
// message path.
type Sender struct {
	Kind        SenderKind
	AccountID   int64
	DisplayName string
}

// AccountSender builds a sender for a registered user.
func AccountSender(id int64, displayName string) Sender {
	return Sender{Kind: SenderAccount, AccountID: id, DisplayName: displayName}
}

// AssistantSender is the sentinel identity for assistant replies.
func AssistantSender() Sender {
	return Sender{Kind: SenderAssistant, DisplayName: AssistantDisplayName}
}

// SystemSender is the sentinel identity for system notices.
func SystemSender() Sender {
	return Sender{Kind: SenderSystem, DisplayName: SystemDisplayName}
}
