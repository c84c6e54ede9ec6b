package irc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIdentity(t *testing.T) {
	modes := ParseUserModes("(qaohv)~&@%+")

	tests := []struct {
		mask string
		want Identity
	}{
		{"nick!ident@host", Identity{Nick: "nick", Ident: "ident", Hostname: "host"}},
		{":nick!ident@host", Identity{Nick: "nick", Ident: "ident", Hostname: "host"}},
		{"irc.example.org", Identity{Nick: "irc.example.org"}},
		{"nick!ident", Identity{Nick: "nick!ident"}},
		{"@+nick", Identity{Nick: "nick", Flags: []string{"o", "v"}}},
		{"+@nick", Identity{Nick: "nick", Flags: []string{"o", "v"}}},
		{"~%nick!i@h", Identity{Nick: "nick", Ident: "i", Hostname: "h", Flags: []string{"q", "h"}}},
		{"ni\x01ck\x1f", Identity{Nick: "nick"}},
		{"\x02\x03", Identity{Nick: "*"}},
		{"", Identity{Nick: "*"}},
		{"nick!id\x01ent@ho\x02st", Identity{Nick: "nick", Ident: "id\x01ent", Hostname: "ho\x02st"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseIdentity(tt.mask, modes), "%q", tt.mask)
	}
}

func TestParseIdentityNickLength(t *testing.T) {
	id := ParseIdentity(strings.Repeat("é", 150), nil)
	assert.Equal(t, 100, len([]rune(id.Nick)))
}

func TestParsePrefix(t *testing.T) {
	assert.Nil(t, ParsePrefix(""))
	p := ParsePrefix("a!b@c")
	assert.Equal(t, "a!b@c", p.String())
	assert.Equal(t, "irc.example.org", ParsePrefix("irc.example.org").String())
	assert.True(t, ParsePrefix("irc.example.org").IsServer())
	assert.False(t, p.IsServer())
}

func TestParseNameReply(t *testing.T) {
	names := ParseNameReply("@alice +bob  carol!c@host ", DefaultUserModes)
	assert.Equal(t, []Identity{
		{Nick: "alice", Flags: []string{"o"}},
		{Nick: "bob", Flags: []string{"v"}},
		{Nick: "carol", Ident: "c", Hostname: "host"},
	}, names)
}

func TestIdentityCopy(t *testing.T) {
	id := &Identity{Nick: "a", Flags: []string{"o"}}
	c := id.Copy()
	c.Flags[0] = "v"
	assert.Equal(t, "o", id.Flags[0])
	assert.True(t, id.HasFlag("o"))

	var nilID *Identity
	assert.Nil(t, nilID.Copy())
}
