package sic

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Simple-Irc-Client/core-sub003/irc"
)

// Network is an entry of the network catalogue.
type Network struct {
	Name    string   `yaml:"network"`
	Servers []string `yaml:"servers"`
	TLS     bool     `yaml:"tls"`
}

type Networks []Network

// ParseNetworks decodes a YAML list of networks.
func ParseNetworks(data []byte) (Networks, error) {
	var networks Networks
	if err := yaml.Unmarshal(data, &networks); err != nil {
		return nil, fmt.Errorf("failed to parse networks: %w", err)
	}
	return networks, nil
}

func LoadNetworks(filename string) (Networks, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseNetworks(data)
}

// Descriptor returns the servers of the named network. Names are compared
// case-insensitively.
func (ns Networks) Descriptor(name string) (*irc.ServerDescriptor, bool) {
	for _, n := range ns {
		if strings.EqualFold(n.Name, name) {
			return &irc.ServerDescriptor{
				Servers: append([]string(nil), n.Servers...),
				TLS:     n.TLS,
			}, true
		}
	}
	return nil, false
}

func (ns Networks) Names() []string {
	names := make([]string, len(ns))
	for i, n := range ns {
		names[i] = n.Name
	}
	return names
}
