package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Group is the client bookkeeping of one display group. It owns at most one
// current and one inactive client. Assigning a role never demotes the
// previous holder; the session does the hand-off explicitly.
type Group struct {
	displayGroupID uint64
	watcher        *ipc.DeathWatcher
	onDied         func(ipc.Handle)
	logger         *zap.Logger

	mu       sync.Mutex
	clients  map[ipc.Handle]*Info
	current  ipc.Handle
	inactive ipc.Handle
}

// NewGroup creates the group for displayGroupID. onDied runs on an IPC
// goroutine when a registered client dies and must only enqueue work.
func NewGroup(displayGroupID uint64, watcher *ipc.DeathWatcher, onDied func(ipc.Handle), logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{
		displayGroupID: displayGroupID,
		watcher:        watcher,
		onDied:         onDied,
		logger:         logger.Named("clients").With(zap.Uint64("display_group", displayGroupID)),
		clients:        make(map[ipc.Handle]*Info),
	}
}

// DisplayGroupID returns the display group the group serves
func (g *Group) DisplayGroupID() uint64 { return g.displayGroupID }

// AddClientInfo inserts info or refreshes an existing entry for the same
// client handle. The first insertion arms a death watch; a client that is
// already dead is rejected.
func (g *Group) AddClientInfo(info Info, event AddEvent) error {
	if info.ClientHandle.IsZero() || info.Client == nil {
		return errs.ErrorClientNullPointer
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.clients[info.ClientHandle]; ok {
		switch event {
		case AddListen:
			existing.EventFlag = info.EventFlag
		default:
			existing.Attribute = info.Attribute
			existing.Config = info.Config
			existing.IsShowKeyboard = info.IsShowKeyboard
			existing.RequestKeyboardReason = info.RequestKeyboardReason
			existing.DisplayID = info.DisplayID
			if info.Channel != nil {
				existing.Channel = info.Channel
				existing.ChannelHandle = info.ChannelHandle
			}
		}
		return nil
	}

	if g.watcher != nil {
		if err := g.watcher.Watch(info.ClientHandle, g.onDied); err != nil {
			g.logger.Warn("client died before registration", zap.Int32("pid", info.Pid), zap.Error(err))
			return err
		}
	}
	stored := info.clone()
	stored.BindImeType = ime.TypeNone
	stored.SessionID = 0
	g.clients[info.ClientHandle] = stored

	g.logger.Debug("client added",
		zap.Int32("pid", info.Pid),
		zap.String("handle", info.ClientHandle.String()),
		zap.Int("clients", len(g.clients)),
	)
	return nil
}

// RemoveClientInfo drops the client. Callers clear its current or inactive
// role first; the group clears a stale role anyway and logs it.
func (g *Group) RemoveClientInfo(h ipc.Handle, isDied bool) {
	g.mu.Lock()
	info, ok := g.clients[h]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, h)
	if g.current == h {
		g.logger.Warn("removed client still held the current role", zap.Int32("pid", info.Pid))
		g.current = ipc.Handle{}
	}
	if g.inactive == h {
		g.inactive = ipc.Handle{}
	}
	remaining := len(g.clients)
	g.mu.Unlock()

	if !isDied && g.watcher != nil {
		g.watcher.Unwatch(h)
	}
	g.logger.Debug("client removed",
		zap.Int32("pid", info.Pid),
		zap.Bool("died", isDied),
		zap.Int("clients", remaining),
	)
}

// GetClientInfo returns a copy of the entry for h or nil
func (g *Group) GetClientInfo(h ipc.Handle) *Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	if info, ok := g.clients[h]; ok {
		return info.clone()
	}
	return nil
}

// GetClientInfoByPid returns a copy of the first entry owned by pid
func (g *Group) GetClientInfoByPid(pid int32) *Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, info := range g.clients {
		if info.Pid == pid {
			return info.clone()
		}
	}
	return nil
}

// SetCurrentClient installs h as current. A zero handle clears the role.
func (g *Group) SetCurrentClient(h ipc.Handle) {
	g.mu.Lock()
	g.current = h
	g.mu.Unlock()
}

// GetCurrentClient returns the current client or nil
func (g *Group) GetCurrentClient() *Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	if info, ok := g.clients[g.current]; ok {
		return info.clone()
	}
	return nil
}

// CurrentHandle returns the current client's handle, zero if none
func (g *Group) CurrentHandle() ipc.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// IsCurrentClient reports whether h holds the current role
func (g *Group) IsCurrentClient(h ipc.Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !h.IsZero() && g.current == h
}

// SetInactiveClient installs h as inactive. A zero handle clears the role.
func (g *Group) SetInactiveClient(h ipc.Handle) {
	g.mu.Lock()
	g.inactive = h
	g.mu.Unlock()
}

// GetInactiveClient returns the inactive client or nil
func (g *Group) GetInactiveClient() *Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	if info, ok := g.clients[g.inactive]; ok {
		return info.clone()
	}
	return nil
}

// IsInactiveClient reports whether h holds the inactive role
func (g *Group) IsInactiveClient(h ipc.Handle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !h.IsZero() && g.inactive == h
}

// UpdateClientInfo applies updates to h's entry atomically
func (g *Group) UpdateClientInfo(h ipc.Handle, updates ...Update) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	info, ok := g.clients[h]
	if !ok {
		return errs.Wrap(errs.ErrorClientNotFound, "update %s", h)
	}
	for _, u := range updates {
		u(info)
	}
	return nil
}

// Clients returns copies of every entry
func (g *Group) Clients() []*Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Info, 0, len(g.clients))
	for _, info := range g.clients {
		out = append(out, info.clone())
	}
	return out
}

// ClientsBoundTo returns copies of the entries bound to role t
func (g *Group) ClientsBoundTo(t ime.Type) []*Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Info
	for _, info := range g.clients {
		if info.BindImeType == t {
			out = append(out, info.clone())
		}
	}
	return out
}

// Len returns the number of registered clients
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

func (g *Group) listeners(bit EventFlag) []*Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Info
	for _, info := range g.clients {
		if info.EventFlag.Has(bit) {
			out = append(out, info.clone())
		}
	}
	return out
}

// NotifyInputStartToClients tells input-start listeners a bind happened.
// One failing listener does not stop the others.
func (g *Group) NotifyInputStartToClients(callingWindowID uint32, requestKeyboardReason int32) {
	for _, info := range g.listeners(EventInputStart) {
		if err := info.Client.NotifyInputStart(callingWindowID, requestKeyboardReason); err != nil {
			g.logger.Warn("notify input start failed", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
}

// NotifyInputStopToClients tells input-stop listeners the bind ended
func (g *Group) NotifyInputStopToClients() {
	for _, info := range g.listeners(EventInputStop) {
		if err := info.Client.NotifyInputStop(); err != nil {
			g.logger.Warn("notify input stop failed", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
}

// NotifyPanelStatusChange tells show or hide listeners about the keyboard
// panel.
func (g *Group) NotifyPanelStatusChange(status protocol.InputWindowStatus, windows []protocol.ImeWindowInfo) {
	bit := EventShow
	if status == protocol.InputWindowHide {
		bit = EventHide
	}
	for _, info := range g.listeners(bit) {
		if err := info.Client.OnPanelStatusChange(status, windows); err != nil {
			g.logger.Warn("notify panel status failed", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
}

// NotifyImeChangeToClients tells change listeners the IME or subtype
// switched.
func (g *Group) NotifyImeChangeToClients(prop protocol.Property, sub protocol.SubProperty) {
	for _, info := range g.listeners(EventChange) {
		if err := info.Client.OnSwitchInput(prop, sub); err != nil {
			g.logger.Warn("notify ime change failed", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
}

// GroupSummary is a read-only view of a group for dumps
type GroupSummary struct {
	DisplayGroupID uint64    `json:"display_group_id"`
	Current        *Summary  `json:"current,omitempty"`
	Inactive       *Summary  `json:"inactive,omitempty"`
	Clients        []Summary `json:"clients"`
}

// Summary snapshots the group
func (g *Group) Summary() GroupSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := GroupSummary{
		DisplayGroupID: g.displayGroupID,
		Clients:        make([]Summary, 0, len(g.clients)),
	}
	for h, info := range g.clients {
		sum := info.summary()
		s.Clients = append(s.Clients, sum)
		if h == g.current {
			s.Current = &sum
		}
		if h == g.inactive {
			inactive := sum
			s.Inactive = &inactive
		}
	}
	return s
}
