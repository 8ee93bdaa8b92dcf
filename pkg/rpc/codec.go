// Package rpc implements the line-oriented JSON-RPC surface: an
// extended-JSON codec over stdio or WebSocket, capability negotiation,
// resource reads and tool dispatch.
package rpc

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// maxLineSize bounds one request frame.
const maxLineSize = 1 << 20

// Request is one inbound frame.
type Request struct {
	ID     any            `bson:"id"`
	Method string         `bson:"method"`
	Params map[string]any `bson:"params,omitempty"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `bson:"code" json:"code"`
	Message string `bson:"message" json:"message"`
}

// Response is one outbound reply frame.
type Response struct {
	JSONRPC string `bson:"jsonrpc" json:"jsonrpc"`
	ID      any    `bson:"id" json:"id"`
	Result  any    `bson:"result,omitempty" json:"result,omitempty"`
	Error   *Error `bson:"error,omitempty" json:"error,omitempty"`
}

// Notification is a server-initiated frame without an id.
type Notification struct {
	Method string         `bson:"method" json:"method"`
	Params map[string]any `bson:"params" json:"params"`
}

// Codec frames extended-JSON messages over some transport. Read returns
// io.EOF when the peer is gone; Write is safe for concurrent use.
type Codec interface {
	Read() (*Request, error)
	Write(msg any) error
	Close() error
}

// LineCodec frames one extended-JSON document per line, the stdio wire
// format. Blank lines are skipped; malformed lines are logged and skipped
// rather than killing the transport.
type LineCodec struct {
	scanner *bufio.Scanner

	mu     sync.Mutex
	writer *bufio.Writer
	closer io.Closer
}

// NewLineCodec creates a codec over a reader/writer pair.
func NewLineCodec(r io.Reader, w io.Writer) *LineCodec {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	c := &LineCodec{scanner: scanner, writer: bufio.NewWriter(w)}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

func (c *LineCodec) Read() (*Request, error) {
	for c.scanner.Scan() {
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}
		var req Request
		if err := bson.UnmarshalExtJSON([]byte(line), false, &req); err != nil {
			slog.Warn("Skipping malformed frame", "error", err)
			continue
		}
		return &req, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *LineCodec) Write(msg any) error {
	data, err := bson.MarshalExtJSON(msg, false, false)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *LineCodec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
