package sic

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strconv"
	"strings"

	"git.sr.ht/~emersion/go-scfg"

	"github.com/Simple-Irc-Client/core-sub003/codec"
	"github.com/Simple-Irc-Client/core-sub003/irc"
	"github.com/Simple-Irc-Client/core-sub003/state"
)

type Config struct {
	Addr         []string
	TLS          bool
	Network      string
	NetworksPath string

	Nick     string
	Real     string
	User     string
	Password *string

	Channels   []string
	Monitor    []string
	Highlights []string

	MaxMessages   int
	EncryptionKey []byte

	Debug       bool
	MetricsAddr string
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return path.Join(configDir, "sic", "sic.scfg"), nil
}

func Defaults() Config {
	return Config{
		TLS:         true,
		MaxMessages: state.DefaultMaxMessages,
	}
}

// Descriptor returns the server descriptor built from the address and tls
// directives.
func (cfg *Config) Descriptor() *irc.ServerDescriptor {
	return &irc.ServerDescriptor{
		Servers: cfg.Addr,
		TLS:     cfg.TLS,
	}
}

// UseNetwork replaces the address of cfg with the servers of the named
// network from the networks file.
func (cfg *Config) UseNetwork(name string) error {
	if cfg.NetworksPath == "" {
		return errors.New("network requires a networks file")
	}
	networks, err := LoadNetworks(cfg.NetworksPath)
	if err != nil {
		return err
	}
	desc, ok := networks.Descriptor(name)
	if !ok {
		return fmt.Errorf("unknown network %q", name)
	}
	cfg.Network = name
	cfg.Addr = desc.Servers
	cfg.TLS = desc.TLS
	return nil
}

func LoadConfigFile(filename string) (cfg Config, err error) {
	cfg = Defaults()

	directives, err := scfg.Load(filename)
	if err != nil {
		return cfg, fmt.Errorf("error parsing scfg: %s", err)
	}
	if err = unmarshal(directives, &cfg); err != nil {
		return cfg, err
	}

	if cfg.Network != "" {
		if err = cfg.UseNetwork(cfg.Network); err != nil {
			return cfg, err
		}
	}

	if _, ok := irc.ParseServer(cfg.Descriptor()); !ok {
		return cfg, errors.New("address is missing or invalid")
	}
	if cfg.Nick == "" {
		return cfg, errors.New("nickname is required")
	}
	if cfg.User == "" {
		cfg.User = cfg.Nick
	}
	if cfg.Real == "" {
		cfg.Real = cfg.Nick
	}
	return
}

// runCmd runs a command and returns the first line of its output.
func runCmd(params []string) (string, error) {
	if len(params) == 0 {
		return "", errors.New("missing command")
	}
	cmd := exec.Command(params[0], params[1:]...)
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(stdout), "\n")
	return line, nil
}

func parseBool(d *scfg.Directive, b *bool) error {
	var s string
	if err := d.ParseParams(&s); err != nil {
		return err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("directive %q: %v", d.Name, err)
	}
	*b = v
	return nil
}

func unmarshal(directives scfg.Block, cfg *Config) (err error) {
	for _, d := range directives {
		switch d.Name {
		case "address":
			if len(d.Params) == 0 {
				return fmt.Errorf("directive %q: expected at least one address", d.Name)
			}
			cfg.Addr = append(cfg.Addr, d.Params...)
		case "tls":
			if err := parseBool(d, &cfg.TLS); err != nil {
				return err
			}
		case "network":
			if err := d.ParseParams(&cfg.Network); err != nil {
				return err
			}
		case "networks":
			if err := d.ParseParams(&cfg.NetworksPath); err != nil {
				return err
			}
		case "nickname":
			if err := d.ParseParams(&cfg.Nick); err != nil {
				return err
			}
		case "username":
			if err := d.ParseParams(&cfg.User); err != nil {
				return err
			}
		case "realname":
			if err := d.ParseParams(&cfg.Real); err != nil {
				return err
			}
		case "password":
			// if a password-cmd is provided, don't use this value
			if directives.Get("password-cmd") != nil {
				continue
			}
			var password string
			if err := d.ParseParams(&password); err != nil {
				return err
			}
			cfg.Password = &password
		case "password-cmd":
			password, err := runCmd(d.Params)
			if err != nil {
				return fmt.Errorf("error running password command: %s", err)
			}
			cfg.Password = &password
		case "channel":
			cfg.Channels = append(cfg.Channels, d.Params...)
		case "monitor":
			cfg.Monitor = append(cfg.Monitor, d.Params...)
		case "highlight":
			cfg.Highlights = append(cfg.Highlights, d.Params...)
		case "max-messages":
			var s string
			if err := d.ParseParams(&s); err != nil {
				return err
			}
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return fmt.Errorf("directive %q: expected a positive integer, got %q", d.Name, s)
			}
			cfg.MaxMessages = n
		case "encryption-key":
			if directives.Get("encryption-key-cmd") != nil {
				continue
			}
			var s string
			if err := d.ParseParams(&s); err != nil {
				return err
			}
			if cfg.EncryptionKey, err = codec.ParseKey(s); err != nil {
				return err
			}
		case "encryption-key-cmd":
			s, err := runCmd(d.Params)
			if err != nil {
				return fmt.Errorf("error running encryption key command: %s", err)
			}
			if cfg.EncryptionKey, err = codec.ParseKey(s); err != nil {
				return err
			}
		case "debug":
			if err := parseBool(d, &cfg.Debug); err != nil {
				return err
			}
		case "metrics":
			if err := d.ParseParams(&cfg.MetricsAddr); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown directive %q", d.Name)
		}
	}

	return
}
