package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorCaseInsensitive(t *testing.T) {
	m := NewMonitor()
	assert.True(t, m.Add("Alice"))
	assert.False(t, m.Add("ALICE"))
	assert.True(t, m.IsMonitored("alice"))

	u, ok := m.Get("aLiCe")
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Nick)
	assert.False(t, u.Online)
	assert.Empty(t, u.UserString)

	assert.True(t, m.Remove("alice"))
	assert.False(t, m.IsMonitored("Alice"))
	assert.False(t, m.Remove("alice"))
}

func TestMonitorOnlineOffline(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMonitor()
	m.now = func() time.Time { return now }

	assert.False(t, m.SetOnline("bob", "bob!b@h"))
	assert.False(t, m.IsMonitored("bob"))

	m.Add("bob")
	now = now.Add(time.Minute)
	assert.True(t, m.SetOnline("BOB", "bob!b@h"))
	u, _ := m.Get("bob")
	assert.True(t, u.Online)
	assert.Equal(t, "bob!b@h", u.UserString)
	assert.Equal(t, now, u.LastUpdate)
	assert.True(t, m.IsOnline("bob"))

	now = now.Add(time.Minute)
	assert.True(t, m.SetOffline("bob"))
	u, _ = m.Get("bob")
	assert.False(t, u.Online)
	assert.Empty(t, u.UserString)
	assert.Equal(t, now, u.LastUpdate)
}

func TestMonitorBatches(t *testing.T) {
	m := NewMonitor()
	m.Add("alice")
	m.SetOnlineBatch([]OnlineUser{
		{Nick: "Alice", UserString: "alice!a@h"},
		{Nick: "carol", UserString: "carol!c@h"},
	})
	assert.True(t, m.IsOnline("alice"))
	assert.True(t, m.IsOnline("carol"))

	m.SetOfflineBatch([]string{"CAROL", "dave"})
	assert.False(t, m.IsOnline("carol"))
	assert.True(t, m.IsMonitored("dave"))

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alice", list[0].Nick)
	assert.Equal(t, "carol", list[1].Nick)
	assert.Equal(t, "dave", list[2].Nick)

	m.Clear()
	assert.Empty(t, m.List())
}
