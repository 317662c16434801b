package inputs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"sync"

	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
	"github.com/sliink/eventd/internal/plugin/processors"
)

const (
	defaultSocketProtocol = "tcp"
	defaultSocketAddress  = "localhost:8888"
)

// SocketInput accepts newline-delimited events over TCP, UDP or a unix
// stream socket. Received lines wait in a bounded buffer until the next
// scan drains them.
type SocketInput struct {
	plugin.BasePlugin
	protocol    string
	address     string
	maxBatch    int
	parser      *processors.LineParser
	buffers     *core.BufferManager
	listener    net.Listener
	packetConn  net.PacketConn
	conns       map[net.Conn]struct{}
	lastDropped int
	mu          sync.Mutex
	wg          sync.WaitGroup
	done        chan struct{}
}

// NewSocketInput creates a new socket input instance
func NewSocketInput(id string) *SocketInput {
	return &SocketInput{
		BasePlugin: plugin.NewBasePlugin(id, "Socket Input", model.SourcePluginType),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Validate validates the plugin configuration
func (p *SocketInput) Validate() bool {
	protocol := p.ConfigString("protocol", defaultSocketProtocol)
	switch protocol {
	case "tcp", "udp", "unix":
	default:
		return false
	}
	_, err := newParser(&p.BasePlugin)
	return err == nil
}

// Initialize prepares the plugin for operation
func (p *SocketInput) Initialize() bool {
	p.protocol = p.ConfigString("protocol", defaultSocketProtocol)
	p.address = p.ConfigString("address", defaultSocketAddress)
	p.maxBatch = p.ConfigInt("max_batch", 0)

	parser, err := newParser(&p.BasePlugin)
	if err != nil {
		p.Logger.Error("invalid parser configuration", "error", err)
		p.SetStatus(model.StatusError)
		return false
	}
	p.parser = parser
	p.buffers = core.NewBufferManager(p.ConfigInt("buffer_size", 1000))

	p.SetStatus(model.StatusInitialized)
	return true
}

// Start opens the listener and begins receiving
func (p *SocketInput) Start() bool {
	if p.buffers == nil && !p.Initialize() {
		return false
	}
	p.done = make(chan struct{})
	p.buffers.Start()

	switch p.protocol {
	case "udp":
		conn, err := net.ListenPacket(p.protocol, p.address)
		if err != nil {
			p.Logger.Error("cannot listen", "protocol", p.protocol, "address", p.address, "error", err)
			p.SetStatus(model.StatusError)
			return false
		}
		p.mu.Lock()
		p.packetConn = conn
		p.mu.Unlock()
		p.wg.Add(1)
		go p.handlePackets(conn)

	default:
		if p.protocol == "unix" {
			removeStaleSocket(p.address)
		}
		listener, err := net.Listen(p.protocol, p.address)
		if err != nil {
			p.Logger.Error("cannot listen", "protocol", p.protocol, "address", p.address, "error", err)
			p.SetStatus(model.StatusError)
			return false
		}
		p.mu.Lock()
		p.listener = listener
		p.mu.Unlock()
		p.wg.Add(1)
		go p.handleConnections(listener)
	}

	p.Logger.Info("socket input listening", "protocol", p.protocol, "address", p.Addr())
	p.SetStatus(model.StatusRunning)
	return true
}

// Stop closes the listener and every open connection
func (p *SocketInput) Stop() bool {
	if p.done == nil {
		p.SetStatus(model.StatusStopped)
		return true
	}

	p.mu.Lock()
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	if p.listener != nil {
		p.listener.Close()
	}
	if p.packetConn != nil {
		p.packetConn.Close()
	}
	for conn := range p.conns {
		conn.Close()
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.buffers.Stop()

	p.SetStatus(model.StatusStopped)
	return true
}

// Addr returns the bound address, useful when listening on port 0
func (p *SocketInput) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.listener != nil:
		return p.listener.Addr().String()
	case p.packetConn != nil:
		return p.packetConn.LocalAddr().String()
	}
	return p.address
}

// Scan drains the events received since the previous scan
func (p *SocketInput) Scan(ctx context.Context) ([]model.Event, error) {
	if p.GetStatus() != model.StatusRunning {
		return nil, nil
	}

	events := p.buffers.Flush(p.ID(), p.maxBatch)

	status := p.buffers.GetBufferStatus()[p.ID()]
	if status.Dropped > p.lastDropped {
		p.Logger.WarnContext(ctx, "socket buffer full, events dropped",
			"dropped", status.Dropped-p.lastDropped)
		p.lastDropped = status.Dropped
	}
	return events, nil
}

// handleConnections accepts connections until the listener closes
func (p *SocketInput) handleConnections(listener net.Listener) {
	defer p.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-p.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			p.Logger.Warn("accept failed", "error", err)
			continue
		}

		p.mu.Lock()
		select {
		case <-p.done:
			p.mu.Unlock()
			conn.Close()
			return
		default:
		}
		p.conns[conn] = struct{}{}
		p.mu.Unlock()

		p.wg.Add(1)
		go p.handleConnection(conn)
	}
}

// handleConnection reads lines until the peer or Stop closes the connection
func (p *SocketInput) handleConnection(conn net.Conn) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.conns, conn)
		p.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		p.receive(scanner.Text())
	}
}

// handlePackets treats every datagram as one or more lines
func (p *SocketInput) handlePackets(conn net.PacketConn) {
	defer p.wg.Done()
	buffer := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buffer)
		if err != nil {
			return
		}
		for _, line := range bytes.Split(buffer[:n], []byte("\n")) {
			p.receive(string(line))
		}
	}
}

func (p *SocketInput) receive(line string) {
	event, ok := p.parser.Parse(line)
	if !ok {
		return
	}
	if !p.buffers.Buffer(p.ID(), event) {
		p.Logger.Debug("event refused by buffer", "kind", event.Kind)
	}
}

// removeStaleSocket deletes a socket file left behind by an unclean exit.
// Anything that is not a socket is left alone so Listen reports it.
func removeStaleSocket(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode().Type() == fs.ModeSocket {
		os.Remove(path)
	}
}
