package irc

import (
	"strings"
	"unicode/utf8"
)

const maxNickLength = 100

// Identity is a parsed user mask: nick!ident@hostname, plus the membership
// flags carried by the prefix symbols that preceded it in a NAMES/WHO reply.
type Identity struct {
	Nick     string
	Ident    string
	Hostname string
	Flags    []string
}

// ParseIdentity parses a user mask as found in message senders, NAMES tokens
// and MONITOR replies. Leading prefix symbols found in modes are turned into
// Flags, reported in the order of modes.
//
// Only the nick is sanitised: control characters are removed, it is truncated
// to 100 runes and an empty nick becomes "*".
func ParseIdentity(mask string, modes []UserMode) Identity {
	mask = strings.TrimPrefix(mask, ":")

	seen := make([]bool, len(modes))
	for mask != "" {
		r, size := utf8.DecodeRuneInString(mask)
		i := modeIndexBySymbol(modes, string(r))
		if i < 0 {
			break
		}
		seen[i] = true
		mask = mask[size:]
	}

	var id Identity
	for i, m := range modes {
		if seen[i] {
			id.Flags = append(id.Flags, m.Flag)
		}
	}

	nick := mask
	if bang := strings.IndexByte(mask, '!'); bang >= 0 {
		if at := strings.IndexByte(mask[bang+1:], '@'); at >= 0 {
			nick = mask[:bang]
			id.Ident = mask[bang+1 : bang+1+at]
			id.Hostname = mask[bang+1+at+1:]
		}
	}
	id.Nick = sanitizeNick(nick)

	return id
}

func sanitizeNick(nick string) string {
	var sb strings.Builder
	n := 0
	for _, r := range nick {
		if r < 0x20 {
			continue
		}
		if n == maxNickLength {
			break
		}
		sb.WriteRune(r)
		n++
	}
	if sb.Len() == 0 {
		return "*"
	}
	return sb.String()
}

// ParsePrefix parses the sender of a message. It returns nil for an empty
// sender.
func ParsePrefix(s string) *Identity {
	if s == "" {
		return nil
	}
	id := ParseIdentity(s, nil)
	return &id
}

// ParseNameReply parses the trailing parameter of RPL_NAMREPLY.
func ParseNameReply(trailing string, modes []UserMode) (names []Identity) {
	for _, word := range strings.Split(trailing, " ") {
		if word == "" {
			continue
		}
		names = append(names, ParseIdentity(word, modes))
	}
	return
}

// Copy returns a deep copy of the identity. A nil receiver gives nil.
func (id *Identity) Copy() *Identity {
	if id == nil {
		return nil
	}
	c := *id
	if id.Flags != nil {
		c.Flags = append([]string(nil), id.Flags...)
	}
	return &c
}

// IsServer reports whether the identity looks like a server name rather than
// a user.
func (id *Identity) IsServer() bool {
	return id.Ident == "" && id.Hostname == "" && strings.ContainsRune(id.Nick, '.')
}

func (id *Identity) HasFlag(flag string) bool {
	for _, f := range id.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (id *Identity) String() string {
	if id == nil {
		return "*"
	}
	if id.Ident == "" && id.Hostname == "" {
		return id.Nick
	}
	return id.Nick + "!" + id.Ident + "@" + id.Hostname
}
