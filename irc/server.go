package irc

import (
	"net"
	"strconv"
	"strings"
)

const (
	DefaultPort    = 6667
	DefaultTLSPort = 6697
)

// ServerDescriptor lists the addresses of a network. Addresses may carry a
// port ("host:port") and a leading '+' that forces TLS.
type ServerDescriptor struct {
	Servers []string `yaml:"servers"`
	TLS     bool     `yaml:"tls"`
}

type ServerTarget struct {
	Host string
	Port int
	TLS  bool
}

// ParseServer resolves the first address of desc. ok is false when desc is
// nil, lists no address, or the address has an invalid port. IPv6 literals
// need brackets to carry a port.
func ParseServer(desc *ServerDescriptor) (target ServerTarget, ok bool) {
	if desc == nil || len(desc.Servers) == 0 {
		return
	}

	addr := strings.TrimSpace(desc.Servers[0])
	target.TLS = desc.TLS
	if strings.HasPrefix(addr, "+") {
		target.TLS = true
		addr = addr[1:]
	}

	host, port := addr, ""
	// an unbracketed IPv6 literal has no port
	if strings.Count(addr, ":") == 1 || strings.HasPrefix(addr, "[") {
		colon := strings.LastIndexByte(addr, ':')
		if colon > strings.LastIndexByte(addr, ']') {
			host, port = addr[:colon], addr[colon+1:]
		}
	}
	if host == "" {
		return ServerTarget{}, false
	}
	target.Host = host

	switch {
	case port != "":
		p, err := strconv.ParseUint(port, 10, 16)
		if err != nil || p == 0 {
			return ServerTarget{}, false
		}
		target.Port = int(p)
	case target.TLS:
		target.Port = DefaultTLSPort
	default:
		target.Port = DefaultPort
	}

	return target, true
}

// Addr returns the address to dial.
func (t ServerTarget) Addr() string {
	host := strings.TrimSuffix(strings.TrimPrefix(t.Host, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(t.Port))
}
