package irc

import (
	"bufio"
	"net"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/net/websocket"
)

// LineConn is a connection exchanging protocol lines, without their CRLF.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type streamConn struct {
	conn net.Conn
	r    *bufio.Scanner
}

// NewStreamConn frames lines over a TCP or TLS connection.
func NewStreamConn(conn net.Conn) LineConn {
	return &streamConn{
		conn: conn,
		r:    bufio.NewScanner(conn),
	}
}

func (c *streamConn) ReadLine() (string, error) {
	if !c.r.Scan() {
		if err := c.r.Err(); err != nil {
			return "", err
		}
		return "", net.ErrClosed
	}
	return c.r.Text(), nil
}

func (c *streamConn) WriteLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

type webSocketConn struct {
	ws *websocket.Conn
}

// NewWebSocketConn exchanges one line per WebSocket text frame, as IRC
// WebSocket gateways do.
func NewWebSocketConn(ws *websocket.Conn) LineConn {
	return &webSocketConn{ws: ws}
}

func (c *webSocketConn) ReadLine() (string, error) {
	var line string
	if err := websocket.Message.Receive(c.ws, &line); err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *webSocketConn) WriteLine(line string) error {
	return websocket.Message.Send(c.ws, line)
}

func (c *webSocketConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *webSocketConn) Close() error {
	return c.ws.Close()
}

// LineEncoder transforms an outbound line before it is written, e.g. to
// encrypt it.
type LineEncoder func(line string) (string, error)

const chanCapacity = 64

// ChanInOut pumps raw inbound lines from conn and writes outbound messages to
// it. Closing out closes conn; in is closed when conn fails.
func ChanInOut(conn LineConn, enc LineEncoder) (in <-chan string, out chan<- Message) {
	in_ := make(chan string, chanCapacity)
	out_ := make(chan Message, chanCapacity)

	const keepAlive = 30 * time.Second
	const maxRTT = 10 * time.Second
	var last atomic.Value
	last.Store(time.Now())

	write := func(line string) error {
		if enc != nil {
			var err error
			if line, err = enc(line); err != nil {
				return err
			}
		}
		return conn.WriteLine(line)
	}

	go func() {
		for {
			line, err := conn.ReadLine()
			if err != nil {
				break
			}
			line = strings.ToValidUTF8(line, string([]rune{unicode.ReplacementChar}))
			now := time.Now()
			last.Store(now)
			conn.SetReadDeadline(now.Add(keepAlive + maxRTT))
			in_ <- line
		}
		close(in_)
	}()

	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
	outer:
		for {
			select {
			case msg, ok := <-out_:
				if !ok {
					break outer
				}
				last.Store(time.Now())
				if err := write(msg.String()); err != nil {
					break outer
				}
			case <-t.C:
				now := time.Now()
				if last.Load().(time.Time).Add(keepAlive).After(now) {
					continue
				}
				if last.Load().(time.Time).Add(keepAlive + maxRTT).Before(now) {
					// probably out of sleep, reset connection
					conn.Close()
					continue
				}
				last.Store(now)
				if err := write("PING _"); err != nil {
					break outer
				}
			}
		}
		_ = conn.Close()
	}()

	return in_, out_
}
