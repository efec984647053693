package ability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Want names the extension ability to connect for a user
type Want struct {
	UserID      int32
	BundleName  string
	AbilityName string
}

func (w Want) String() string {
	return fmt.Sprintf("%d:%s/%s", w.UserID, w.BundleName, w.AbilityName)
}

// Launcher spawns the process of an ability and returns its pid. The
// process registers itself with the service once it is up.
type Launcher func(ctx context.Context, want Want, token string) (pid int32, err error)

// Connection is one live ability connection
type Connection struct {
	Token       string    `json:"token"`
	Want        string    `json:"want"`
	Pid         int32     `json:"pid"`
	ConnectedAt time.Time `json:"connected_at"`
}

// LocalConnector launches abilities in process through launchers
// registered per bundle.
type LocalConnector struct {
	registry *ipc.Registry
	logger   *zap.Logger

	mu        sync.RWMutex
	launchers map[string]Launcher // Protected by mu
	conns     map[Want]*Connection
}

// NewLocalConnector creates a connector. registry is used to kill force
// stopped processes and may be nil.
func NewLocalConnector(registry *ipc.Registry, logger *zap.Logger) *LocalConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalConnector{
		registry:  registry,
		logger:    logger.Named("ability"),
		launchers: make(map[string]Launcher),
		conns:     make(map[Want]*Connection),
	}
}

// RegisterLauncher installs the launcher of bundleName
func (c *LocalConnector) RegisterLauncher(bundleName string, l Launcher) {
	c.mu.Lock()
	c.launchers[bundleName] = l
	c.mu.Unlock()
}

// Connect launches want unless it is already connected
func (c *LocalConnector) Connect(ctx context.Context, want Want) error {
	c.mu.RLock()
	launch, ok := c.launchers[want.BundleName]
	_, connected := c.conns[want]
	c.mu.RUnlock()

	if !ok {
		return errs.Wrap(errs.ErrorImsaImeConnectFailed, "no launcher for %s", want.BundleName)
	}
	if connected {
		return nil
	}

	token := uuid.New().String()
	pid, err := launch(ctx, want, token)
	if err != nil {
		return errs.Wrap(errs.ErrorImsaImeConnectFailed, "launch %s: %v", want, err)
	}

	c.mu.Lock()
	c.conns[want] = &Connection{Token: token, Want: want.String(), Pid: pid, ConnectedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Info("ability connected", zap.Stringer("want", want), zap.Int32("pid", pid), zap.String("token", token))
	return nil
}

func (c *LocalConnector) take(want Want) *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[want]
	if !ok {
		return nil
	}
	delete(c.conns, want)
	return conn
}

// Disconnect forgets the connection and leaves the process to exit on its
// own.
func (c *LocalConnector) Disconnect(want Want) error {
	conn := c.take(want)
	if conn == nil {
		return errs.Wrap(errs.ErrorImsaImeDisconnectFailed, "%s not connected", want)
	}
	c.logger.Info("ability disconnected", zap.Stringer("want", want), zap.Int32("pid", conn.Pid))
	return nil
}

// ForceStop kills the process behind want
func (c *LocalConnector) ForceStop(want Want) error {
	conn := c.take(want)
	if conn == nil {
		return nil
	}
	if c.registry != nil {
		c.registry.KillProcess(conn.Pid)
	}
	c.logger.Warn("ability force stopped", zap.Stringer("want", want), zap.Int32("pid", conn.Pid))
	return nil
}

// Connections lists live connections ordered by want
func (c *LocalConnector) Connections() []Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Connection, 0, len(c.conns))
	for _, conn := range c.conns {
		out = append(out, *conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Want < out[j].Want })
	return out
}
