package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		want Category
	}{
		{"Status", CategoryStatus},
		{"Debug", CategoryDebug},
		{"#chan", CategoryChannel},
		{"&local", CategoryChannel},
		{"alice", CategoryPriv},
		{"", CategoryPriv},
		{"status", CategoryPriv},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.name, "#&"), tt.name)
	}
	assert.Equal(t, "priv", CategoryPriv.String())
}

func TestChannelsAddRemove(t *testing.T) {
	cs := NewChannels(0)
	assert.True(t, cs.Add("#a", CategoryChannel))
	assert.False(t, cs.Add("#a", CategoryPriv))
	assert.True(t, cs.Add("#A", CategoryChannel))
	assert.Equal(t, []string{"#a", "#A"}, cs.Names())

	c, ok := cs.Get("#a")
	require.True(t, ok)
	assert.Equal(t, CategoryChannel, c.Category)

	assert.True(t, cs.Remove("#a"))
	assert.False(t, cs.Remove("#a"))
	assert.False(t, cs.Has("#a"))
	assert.True(t, cs.Has("#A"))

	cs.Clear()
	assert.Empty(t, cs.Names())
}

func TestChannelsEviction(t *testing.T) {
	cs := NewChannels(3)
	var evicted int
	cs.OnEvict = func(string) { evicted++ }
	cs.Add("#a", CategoryChannel)
	for i := 0; i < 5; i++ {
		cs.AppendMessage("#a", Message{ID: fmt.Sprint(i)})
	}
	c, _ := cs.Get("#a")
	require.Len(t, c.Messages, 3)
	assert.Equal(t, "2", c.Messages[0].ID)
	assert.Equal(t, "4", c.Messages[2].ID)
	assert.Equal(t, 2, evicted)

	assert.False(t, cs.AppendMessage("#missing", Message{}))
}

func TestChannelsDefaultLimit(t *testing.T) {
	cs := NewChannels(0)
	cs.Add("#a", CategoryChannel)
	for i := 0; i < DefaultMaxMessages+10; i++ {
		cs.AppendMessage("#a", Message{ID: fmt.Sprint(i)})
	}
	c, _ := cs.Get("#a")
	assert.Len(t, c.Messages, DefaultMaxMessages)
	assert.Equal(t, "10", c.Messages[0].ID)
}

func TestChannelsTopic(t *testing.T) {
	cs := NewChannels(0)
	cs.Add("#a", CategoryChannel)
	at := time.Unix(1700000000, 0)
	assert.True(t, cs.SetTopic("#a", "hello", "alice", at))
	topic, by, when := cs.Topic("#a")
	assert.Equal(t, "hello", topic)
	assert.Equal(t, "alice", by)
	assert.Equal(t, at, when)
	assert.False(t, cs.SetTopic("#b", "x", "", at))
}

func TestChannelsTyping(t *testing.T) {
	now := time.Unix(1000, 0)
	cs := NewChannels(0)
	cs.now = func() time.Time { return now }
	cs.Add("#a", CategoryChannel)

	cs.SetTyping("#a", "bob", true)
	cs.SetTyping("#a", "alice", true)
	cs.SetTyping("#a", "alice", true)
	assert.Equal(t, []string{"alice", "bob"}, cs.Typing("#a"))

	cs.SetTyping("#a", "bob", false)
	assert.Equal(t, []string{"alice"}, cs.Typing("#a"))

	now = now.Add(3 * time.Second)
	cs.SetTyping("#a", "carol", true)
	assert.Empty(t, cs.ExpireTyping())

	now = now.Add(3 * time.Second)
	assert.Equal(t, []string{"#a"}, cs.ExpireTyping())
	assert.Equal(t, []string{"carol"}, cs.Typing("#a"))
}

func TestChannelsUnread(t *testing.T) {
	cs := NewChannels(0)
	cs.Add("#a", CategoryChannel)
	cs.IncreaseUnread("#a")
	cs.IncreaseUnread("#a")
	cs.SetMention("#a")
	c, _ := cs.Get("#a")
	assert.Equal(t, 2, c.Unread)
	assert.True(t, c.Mention)

	cs.ClearUnread("#a")
	c, _ = cs.Get("#a")
	assert.Equal(t, 0, c.Unread)
	assert.False(t, c.Mention)

	cs.IncreaseUnread("#a")
	assert.True(t, cs.SetActive("#a"))
	assert.Equal(t, "#a", cs.Active())
	c, _ = cs.Get("#a")
	assert.Equal(t, 0, c.Unread)
	assert.False(t, cs.SetActive("#b"))

	cs.Remove("#a")
	assert.Equal(t, "", cs.Active())
}

func TestChannelsMetadata(t *testing.T) {
	cs := NewChannels(0)
	cs.Add("alice", CategoryPriv)
	cs.SetAvatar("alice", "https://example.org/a.png")
	cs.SetDisplayName("alice", "Alice")
	c, _ := cs.Get("alice")
	assert.Equal(t, "https://example.org/a.png", c.Avatar)
	assert.Equal(t, "Alice", c.DisplayName)
}

func TestChannelsSnapshot(t *testing.T) {
	cs := NewChannels(0)
	cs.Add("#a", CategoryChannel)
	cs.AppendMessage("#a", Message{ID: "1"})
	c, _ := cs.Get("#a")
	c.Messages[0].ID = "changed"
	c, _ = cs.Get("#a")
	assert.Equal(t, "1", c.Messages[0].ID)
}
