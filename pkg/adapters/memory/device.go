package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Device simulates a controller reachable over ADS. It is its own dialer;
// every Dial returns a connection to the same simulated device.
type Device struct {
	mu        sync.Mutex
	state     domain.ControllerState
	afterRun  domain.ControllerState
	dialErr   error
	fail      map[string]error
	calls     []string
	lastDial  domain.ConnectionInfo
	openConns int
}

var _ ports.ControllerDialer = (*Device)(nil)

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithRestartState sets the state the device reaches after StartRestart.
// It defaults to Run.
func WithRestartState(s domain.ControllerState) DeviceOption {
	return func(d *Device) { d.afterRun = s }
}

// WithDialError makes every Dial fail.
func WithDialError(err error) DeviceOption {
	return func(d *Device) { d.dialErr = err }
}

// WithDeviceFailure makes every call of op fail with err.
func WithDeviceFailure(op string, err error) DeviceOption {
	return func(d *Device) { d.fail[op] = err }
}

// NewDevice creates a device in the given state.
func NewDevice(state domain.ControllerState, opts ...DeviceOption) *Device {
	d := &Device{
		state:    state,
		afterRun: domain.StateRun,
		fail:     make(map[string]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) record(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, op)
	return d.fail[op]
}

func (d *Device) Dial(ctx context.Context, info domain.ConnectionInfo) (ports.ControllerConn, error) {
	if err := d.record("Dial"); err != nil {
		return nil, err
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.mu.Lock()
	d.lastDial = info
	d.openConns++
	d.mu.Unlock()
	return &deviceConn{d: d, netID: info.NetID}, nil
}

// SetState changes the simulated state.
func (d *Device) SetState(s domain.ControllerState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

// State returns the simulated state.
func (d *Device) State() domain.ControllerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Calls returns every call the device received, Dial included.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// OpenConns returns the number of connections not yet closed.
func (d *Device) OpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openConns
}

// LastDial returns the connection parameters of the last Dial.
func (d *Device) LastDial() domain.ConnectionInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDial
}

type deviceConn struct {
	d      *Device
	netID  string
	once   sync.Once
	closed bool
}

func (c *deviceConn) ReadState(ctx context.Context) (domain.ControllerStatus, error) {
	if err := c.d.record("ReadState"); err != nil {
		return domain.ControllerStatus{}, err
	}
	if c.closed {
		return domain.ControllerStatus{}, domain.ErrConnectionLost
	}
	return domain.ControllerStatus{
		NetID:     c.netID,
		State:     c.d.State(),
		Timestamp: time.Now().UTC(),
	}, nil
}

func (c *deviceConn) SwitchToConfigMode(ctx context.Context) error {
	if err := c.d.record("SwitchToConfigMode"); err != nil {
		return err
	}
	c.d.SetState(domain.StateConfig)
	return nil
}

func (c *deviceConn) StartRestart(ctx context.Context) error {
	if err := c.d.record("StartRestart"); err != nil {
		return err
	}
	c.d.mu.Lock()
	c.d.state = c.d.afterRun
	c.d.mu.Unlock()
	return nil
}

func (c *deviceConn) Close() error {
	c.once.Do(func() {
		c.closed = true
		c.d.mu.Lock()
		c.d.calls = append(c.d.calls, "Close")
		c.d.openConns--
		c.d.mu.Unlock()
	})
	return nil
}
