// Package ads talks to TwinCAT controllers over AMS/TCP.
package ads

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Dialer opens AMS/TCP connections to controllers.
type Dialer struct {
	source     NetID
	sourcePort uint16
	timeout    time.Duration
	logger     *slog.Logger
}

var _ ports.ControllerDialer = (*Dialer)(nil)

// Option configures a Dialer.
type Option func(*Dialer)

// WithSource sets the AMS address this side uses. The target router must
// have a route for it.
func WithSource(id NetID, port uint16) Option {
	return func(d *Dialer) {
		d.source = id
		d.sourcePort = port
	}
}

// WithTimeout bounds every request that carries no earlier deadline.
func WithTimeout(t time.Duration) Option {
	return func(d *Dialer) { d.timeout = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dialer) { d.logger = l }
}

// NewDialer creates a dialer.
func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		sourcePort: 32905,
		timeout:    5 * time.Second,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects to the router at info.Host.
func (d *Dialer) Dial(ctx context.Context, info domain.ConnectionInfo) (ports.ControllerConn, error) {
	info = info.WithDefaults()
	target, err := ParseNetID(info.NetID)
	if err != nil {
		return nil, err
	}
	if info.Host == "" {
		return nil, fmt.Errorf("target %s has no host", info.NetID)
	}
	source := d.source
	if source == (NetID{}) {
		source = NetID{127, 0, 0, 1, 1, 1}
	}

	addr := net.JoinHostPort(info.Host, strconv.Itoa(info.TCPPort))
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrConnectionLost, addr, err)
	}
	d.logger.Debug("ADS connection opened", "net_id", info.NetID, "addr", addr)
	return &Conn{
		conn:        c,
		netID:       info.NetID,
		target:      target,
		runtimePort: uint16(info.Port),
		source:      source,
		sourcePort:  d.sourcePort,
		timeout:     d.timeout,
	}, nil
}

// Conn is one AMS/TCP connection. Requests are serialized.
type Conn struct {
	mu          sync.Mutex
	conn        net.Conn
	netID       string
	target      NetID
	runtimePort uint16
	source      NetID
	sourcePort  uint16
	timeout     time.Duration
	invoke      uint32
	broken      bool
}

var _ ports.ControllerConn = (*Conn)(nil)

// ReadState combines the system service and PLC runtime states: a system
// in Config mode reports Config, otherwise the runtime state is reported.
func (c *Conn) ReadState(ctx context.Context) (domain.ControllerStatus, error) {
	sys, err := c.readState(ctx, SystemServicePort)
	if err != nil {
		return domain.ControllerStatus{}, err
	}
	state := sys
	if sys == domain.StateRun && c.runtimePort != SystemServicePort {
		if state, err = c.readState(ctx, c.runtimePort); err != nil {
			return domain.ControllerStatus{}, err
		}
	}
	return domain.ControllerStatus{NetID: c.netID, State: state, Timestamp: time.Now().UTC()}, nil
}

// SwitchToConfigMode requests Reconfig from the system service.
func (c *Conn) SwitchToConfigMode(ctx context.Context) error {
	return c.writeControl(ctx, SystemServicePort, domain.StateReconfig)
}

// StartRestart requests Run from the system service.
func (c *Conn) StartRestart(ctx context.Context) error {
	return c.writeControl(ctx, SystemServicePort, domain.StateRun)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) readState(ctx context.Context, port uint16) (domain.ControllerState, error) {
	data, err := c.request(ctx, port, cmdReadState, nil)
	if err != nil {
		return domain.StateInvalid, err
	}
	if len(data) < 8 {
		return domain.StateInvalid, fmt.Errorf("short ReadState response (%d bytes)", len(data))
	}
	if code := binary.LittleEndian.Uint32(data[0:4]); code != 0 {
		return domain.StateInvalid, &Error{Code: code}
	}
	return domain.ControllerState(binary.LittleEndian.Uint16(data[4:6])), nil
}

func (c *Conn) writeControl(ctx context.Context, port uint16, state domain.ControllerState) error {
	req := make([]byte, 8)
	binary.LittleEndian.PutUint16(req[0:2], uint16(state))
	data, err := c.request(ctx, port, cmdWriteControl, req)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return fmt.Errorf("short WriteControl response (%d bytes)", len(data))
	}
	if code := binary.LittleEndian.Uint32(data[0:4]); code != 0 {
		return &Error{Code: code}
	}
	return nil
}

// request sends one command and waits for the response with the same
// invoke id. Any transport failure leaves the connection unusable.
func (c *Conn) request(ctx context.Context, port, cmd uint16, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, domain.ErrConnectionLost
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.lost(err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	c.invoke++
	req := packet{amsHeader: amsHeader{
		Target:     c.target,
		TargetPort: port,
		Source:     c.source,
		SourcePort: c.sourcePort,
		Command:    cmd,
		Flags:      flagRequest,
		InvokeID:   c.invoke,
	}, Data: data}
	if _, err := c.conn.Write(req.encode()); err != nil {
		return nil, c.lost(ctxErr(ctx, err))
	}

	for {
		resp, err := readPacket(c.conn)
		if err != nil {
			return nil, c.lost(ctxErr(ctx, err))
		}
		if resp.InvokeID != req.InvokeID || resp.Command != cmd || resp.Flags&flagResponse != flagResponse {
			continue
		}
		if resp.ErrorCode != 0 {
			return nil, &Error{Code: resp.ErrorCode}
		}
		return resp.Data, nil
	}
}

func (c *Conn) lost(err error) error {
	c.broken = true
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
}

// ctxErr prefers the context error when the context ended the request.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}
