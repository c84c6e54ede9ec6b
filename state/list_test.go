package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelListAdd(t *testing.T) {
	l := NewChannelList()
	assert.True(t, l.Add("#a", 3, "first"))
	assert.False(t, l.Add("#a", 5, "second"))
	assert.False(t, l.Add("*", 1, ""))
	assert.True(t, l.Add("#b", -4, ""))

	entries := l.Entries()
	assert.Equal(t, []ListEntry{
		{Name: "#a", Users: 3, Topic: "first"},
		{Name: "#b", Users: 0},
	}, entries)
}

func TestChannelListCap(t *testing.T) {
	l := NewChannelList()
	for i := 0; i < MaxListEntries+5; i++ {
		l.Add(fmt.Sprintf("#c%d", i), i, "")
	}
	assert.Equal(t, MaxListEntries, l.Len())
	assert.Equal(t, "#c0", l.Entries()[0].Name)
}

func TestChannelListFinish(t *testing.T) {
	l := NewChannelList()
	for i := 0; i < MinListEntries-1; i++ {
		l.Add(fmt.Sprintf("#c%d", i), i, "")
	}
	l.Finish()
	assert.True(t, l.Finished())
	assert.Equal(t, 0, l.Len())

	l.Reset()
	assert.False(t, l.Finished())
	for i := 0; i < MinListEntries; i++ {
		l.Add(fmt.Sprintf("#c%d", i), i, "")
	}
	l.Finish()
	assert.True(t, l.Finished())
	assert.Equal(t, MinListEntries, l.Len())

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Finished())
	assert.True(t, l.Add("#c0", 1, ""))
}
