package models

import (
	"strings"
	"time"
)

// Message is an email pulled in by the external mailbox sync.
//
// ID is the locally-assigned surrogate row id and is NOT stable across
// re-imports. MessageID is the provider-assigned identifier and is the durable
// key all links anchor to.
type Message struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
}

// SenderDomain returns the normalized domain part of the sender address, or ""
// if the address has no @.
func (m *Message) SenderDomain() string {
	return EmailDomain(m.Sender)
}

// NormalizeEmail lowercases and trims an email address for comparison.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// EmailDomain extracts the normalized domain from an email address.
func EmailDomain(addr string) string {
	addr = NormalizeEmail(addr)
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return addr[at+1:]
}
