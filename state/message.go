// Package state holds the session stores fed by the protocol kernel:
// channels and their messages, the away buffer, the channel list and the
// presence monitor. Every store is safe for concurrent use; getters return
// copies.
package state

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"mvdan.cc/xurls/v2"

	"github.com/Simple-Irc-Client/core-sub003/irc"
)

var urlRegex *regexp.Regexp

func init() {
	urlRegex, _ = xurls.StrictMatchingScheme(xurls.AnyScheme)
}

// Sender is who sent a message: either a bare name (SimpleSender) or a
// parsed identity (ResolvedSender).
type Sender interface {
	Nick() string
	isSender()
}

// SimpleSender is a sender known only by name, such as a server or a local
// status line.
type SimpleSender string

func (s SimpleSender) Nick() string { return string(s) }
func (SimpleSender) isSender()      {}

// ResolvedSender is a sender parsed from a message prefix.
type ResolvedSender struct {
	irc.Identity
}

func (s ResolvedSender) Nick() string { return s.Identity.Nick }
func (ResolvedSender) isSender()      {}

// Message is a line stored in a channel.
type Message struct {
	ID      string
	Time    time.Time
	Command string // PRIVMSG, NOTICE, ACTION, or a local kind such as INFO
	Sender  Sender
	Target  string
	Text    string
	Links   []string
	Mention bool
}

// NewMessage builds a message, taking its ID from the msgid tag when the
// server provides one.
func NewMessage(command string, sender Sender, target, text string, at time.Time, tags map[string]string) Message {
	id := tags["msgid"]
	if id == "" {
		id = uuid.NewString()
	}
	return Message{
		ID:      id,
		Time:    at,
		Command: command,
		Sender:  sender,
		Target:  target,
		Text:    text,
		Links:   urlRegex.FindAllString(text, -1),
	}
}
