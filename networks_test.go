package sic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simple-Irc-Client/core-sub003/irc"
)

func TestParseNetworks(t *testing.T) {
	networks, err := ParseNetworks([]byte(`
- network: Libera
  servers:
    - +irc.libera.chat
    - irc.eu.libera.chat:6697
  tls: true
- network: OFTC
  servers: [irc.oftc.net]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Libera", "OFTC"}, networks.Names())

	desc, ok := networks.Descriptor("libera")
	require.True(t, ok)
	assert.Equal(t, &irc.ServerDescriptor{
		Servers: []string{"+irc.libera.chat", "irc.eu.libera.chat:6697"},
		TLS:     true,
	}, desc)

	target, ok := irc.ParseServer(desc)
	require.True(t, ok)
	assert.Equal(t, irc.ServerTarget{Host: "irc.libera.chat", Port: 6697, TLS: true}, target)

	desc, ok = networks.Descriptor("oftc")
	require.True(t, ok)
	target, ok = irc.ParseServer(desc)
	require.True(t, ok)
	assert.Equal(t, irc.ServerTarget{Host: "irc.oftc.net", Port: 6667}, target)

	_, ok = networks.Descriptor("efnet")
	assert.False(t, ok)
}

func TestParseNetworksInvalid(t *testing.T) {
	_, err := ParseNetworks([]byte("network: [unterminated"))
	assert.Error(t, err)
}
