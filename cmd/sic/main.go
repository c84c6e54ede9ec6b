package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/proxy"
	"golang.org/x/net/websocket"

	sic "github.com/Simple-Irc-Client/core-sub003"
	"github.com/Simple-Irc-Client/core-sub003/codec"
	"github.com/Simple-Irc-Client/core-sub003/irc"
	"github.com/Simple-Irc-Client/core-sub003/state"
)

func main() {
	var configPath string
	var network string
	var debug bool
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.StringVar(&network, "network", "", "name of the network to connect to, from the networks file")
	flag.BoolVar(&debug, "debug", false, "show raw protocol data in the Debug channel")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	if configPath == "" {
		var err error
		configPath, err = sic.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to find the configuration directory: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := sic.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load the required configuration file at %q: %s\n", configPath, err)
		os.Exit(1)
	}
	if network != "" {
		if err := cfg.UseNetwork(network); err != nil {
			fmt.Fprintf(os.Stderr, "failed to select network %q: %s\n", network, err)
			os.Exit(1)
		}
	}
	cfg.Debug = cfg.Debug || debug

	if key := os.Getenv("SIC_ENCRYPTION_KEY"); key != "" {
		cfg.EncryptionKey, err = codec.ParseKey(key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid SIC_ENCRYPTION_KEY: %v\n", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	opts := []sic.Option{sic.WithRegisterer(reg)}
	var enc irc.LineEncoder
	if cfg.EncryptionKey != nil {
		if err := codec.Install(cfg.EncryptionKey); err != nil {
			fmt.Fprintf(os.Stderr, "failed to install the encryption key: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, sic.WithCodec(codec.Default()))
		enc = codec.EncryptString
	}
	app := sic.NewApp(cfg, opts...)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	input := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			input <- sc.Text()
		}
		close(input)
	}()

	typing := time.NewTicker(time.Second)
	defer typing.Stop()

	for {
		conn, err := dial(cfg)
		if err != nil {
			log.Printf("connection failed: %v", err)
			time.Sleep(10 * time.Second)
			continue
		}
		in, out := irc.ChanInOut(conn, enc)
		app.Connect(out)

		var seen int
	loop:
		for {
			select {
			case line, ok := <-in:
				if !ok {
					break loop
				}
				app.HandleLine(line)
			case content, ok := <-input:
				if !ok {
					app.HandleInput(state.StatusChannel, "/quit")
					input = nil
					continue
				}
				if err := app.HandleInput(app.Channels().Active(), content); err != nil {
					fmt.Fprintf(os.Stderr, "%v\n", err)
				}
			case <-typing.C:
				app.ExpireTyping()
			case <-sigCh:
				app.HandleInput(state.StatusChannel, "/quit")
				app.Disconnect()
				return
			}
			seen = printNew(app, seen)
		}
		app.Disconnect()
		printNew(app, seen)
		if input == nil {
			return
		}
		time.Sleep(10 * time.Second)
	}
}

// printNew prints the Status lines added since the last call.
func printNew(app *sic.App, seen int) int {
	c, ok := app.Channels().Get(state.StatusChannel)
	if !ok {
		return 0
	}
	if seen > len(c.Messages) {
		seen = 0
	}
	for _, msg := range c.Messages[seen:] {
		fmt.Printf("%s %s\n", msg.Time.Format("15:04"), msg.Text)
	}
	return len(c.Messages)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics: %v", err)
	}
}

func dial(cfg sic.Config) (irc.LineConn, error) {
	if len(cfg.Addr) > 0 && (strings.HasPrefix(cfg.Addr[0], "ws://") || strings.HasPrefix(cfg.Addr[0], "wss://")) {
		origin := "http://localhost/"
		ws, err := websocket.Dial(cfg.Addr[0], "text.ircv3.net", origin)
		if err != nil {
			return nil, fmt.Errorf("connect: %v", err)
		}
		return irc.NewWebSocketConn(ws), nil
	}

	target, ok := irc.ParseServer(cfg.Descriptor())
	if !ok {
		return nil, errors.New("no server to connect to")
	}
	addr := target.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
	}
	conn, err := proxy.FromEnvironmentUsing(dialer).(proxy.ContextDialer).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect: %v", err)
	}

	if target.TLS {
		host, _, _ := net.SplitHostPort(addr) // should succeed since DialContext did.
		conn = tls.Client(conn, &tls.Config{
			ServerName: host,
			NextProtos: []string{"irc"},
		})
		if err := conn.(*tls.Conn).HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake: %v", err)
		}
	}
	return irc.NewStreamConn(conn), nil
}
