package builtin

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/imsa"
	"github.com/GriffinCanCode/imf/internal/infrastructure/logging"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
	"github.com/GriffinCanCode/imf/internal/providers/account"
)

// AppID is the per-user app id builtin keyboards run under
const AppID int32 = 10000

// Registrar receives the core of a launched keyboard
type Registrar interface {
	SetCoreAndAgent(caller imsa.Caller, reg imsa.ImeRegistration) error
}

type agentStub struct{}

func (agentStub) Descriptor() string { return "imf.builtin.Agent" }
func (agentStub) OnRemoteRequest(uint32, *ipc.Parcel, *ipc.Parcel, ipc.Option) error {
	return nil
}

// Keyboard is a headless IME. It keeps the binding state the service drives
// and logs every request.
type Keyboard struct {
	reg    *ipc.Registry
	pid    int32
	logger *zap.Logger

	mu      sync.Mutex
	control ipc.Handle
	channel ipc.Handle
	shown   bool
	subtype string
}

func (k *Keyboard) InitInputControlChannel(control ipc.Handle) error {
	k.mu.Lock()
	k.control = control
	k.mu.Unlock()
	return nil
}

func (k *Keyboard) StartInput(info protocol.InputClientInfo, isBindFromClient bool) error {
	k.mu.Lock()
	k.channel = info.Channel
	k.shown = info.IsShowKeyboard
	k.mu.Unlock()
	logging.ForClient(k.logger, info.Pid, info.Uid).Debug("input started",
		zap.Bool("show", info.IsShowKeyboard),
		logging.Text("placeholder", info.Config.InputAttribute.PlaceholderText),
		zap.Bool("from_client", isBindFromClient),
	)
	return nil
}

func (k *Keyboard) StopInput(channel ipc.Handle) error {
	k.mu.Lock()
	if k.channel == channel {
		k.channel = ipc.Handle{}
		k.shown = false
	}
	k.mu.Unlock()
	return nil
}

func (k *Keyboard) ShowKeyboard() error { k.setShown(true); return nil }
func (k *Keyboard) HideKeyboard() error { k.setShown(false); return nil }

func (k *Keyboard) setShown(shown bool) {
	k.mu.Lock()
	k.shown = shown
	k.mu.Unlock()
}

// StopInputService exits the process when asked to terminate
func (k *Keyboard) StopInputService(isTerminateIme bool) error {
	k.logger.Info("input service stopping", zap.Bool("terminate", isTerminateIme))
	if isTerminateIme {
		go k.reg.KillProcess(k.pid)
	}
	return nil
}

func (k *Keyboard) SetSubtype(sub protocol.SubProperty) error {
	k.mu.Lock()
	k.subtype = sub.ID
	k.mu.Unlock()
	k.logger.Debug("subtype set", zap.String("subtype", sub.ID))
	return nil
}

func (k *Keyboard) IsEnable() (bool, error) { return true, nil }

func (k *Keyboard) IsPanelShown(protocol.PanelInfo) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.shown, nil
}

func (k *Keyboard) OnSecurityChange(mode protocol.SecurityMode) error {
	k.logger.Debug("security mode changed", zap.Int32("mode", int32(mode)))
	return nil
}

// OnConnectSystemCmd has no system panel to offer
func (k *Keyboard) OnConnectSystemCmd(ipc.Handle) (ipc.Handle, error) {
	return ipc.Handle{}, nil
}

func (k *Keyboard) OnClientInactive(channel ipc.Handle) error { return k.StopInput(channel) }

func (k *Keyboard) OnSetInputType(t protocol.InputType) error {
	k.logger.Debug("input type set", zap.Int32("type", int32(t)))
	return nil
}

func (k *Keyboard) OnCallingDisplayIDChanged(uint64) error { return nil }

// Shown reports whether the panel is up
func (k *Keyboard) Shown() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.shown
}

// Subtype is the last subtype the service set
func (k *Keyboard) Subtype() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.subtype
}

// Launcher starts builtin keyboards for the connector. Pids count up from
// firstPid.
type Launcher struct {
	reg       *ipc.Registry
	registrar Registrar
	logger    *zap.Logger
	nextPid   atomic.Int32

	mu        sync.Mutex
	keyboards map[int32]*Keyboard
}

// NewLauncher creates a launcher that reports keyboards to registrar
func NewLauncher(reg *ipc.Registry, registrar Registrar, firstPid int32, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{
		reg:       reg,
		registrar: registrar,
		logger:    logger.Named("builtin"),
		keyboards: make(map[int32]*Keyboard),
	}
	l.nextPid.Store(firstPid - 1)
	return l
}

// Launch is an ability.Launcher. The keyboard registers from its own
// goroutine, as a separate process would.
func (l *Launcher) Launch(_ context.Context, want ability.Want, token string) (int32, error) {
	pid := l.nextPid.Add(1)
	uid := want.UserID*account.PerUserRange + AppID
	k := &Keyboard{
		reg:    l.reg,
		pid:    pid,
		logger: logging.ForIme(l.logger, want.BundleName, pid),
	}
	core := l.reg.Register(protocol.NewCoreStub(k), pid, uid)
	agent := l.reg.Register(agentStub{}, pid, uid)

	l.mu.Lock()
	l.keyboards[pid] = k
	l.mu.Unlock()

	caller := imsa.Caller{Pid: pid, Uid: uid}
	registration := imsa.ImeRegistration{BundleName: want.BundleName, Core: core, Agent: agent}
	go func() {
		if err := l.registrar.SetCoreAndAgent(caller, registration); err != nil {
			l.logger.Warn("keyboard not registered", zap.Int32("pid", pid), zap.Error(err))
		}
	}()
	k.logger.Info("keyboard launched", zap.String("token", token))
	return pid, nil
}

// Keyboard returns the keyboard running as pid
func (l *Launcher) Keyboard(pid int32) (*Keyboard, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keyboards[pid]
	return k, ok
}
