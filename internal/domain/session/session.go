package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/message"
	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
	"github.com/GriffinCanCode/imf/internal/shared/clock"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// DefaultDisplayGroup is the group of the main display
const DefaultDisplayGroup uint64 = 0

// Poster enqueues work for the consumer goroutine
type Poster interface {
	Push(msg *message.Message) error
}

// ImeInquirer answers questions about installed input methods
type ImeInquirer interface {
	GetDefaultIme() ime.Target
	GetImeProperty(userID int32, bundleName string) (protocol.Property, error)
	GetSubProperty(userID int32, bundleName, subName string) (protocol.SubProperty, error)
	GetSecurityMode(userID int32, bundleName string) protocol.SecurityMode
}

// ImeSettings reads the user's configured IME.
type ImeSettings interface {
	CurrentIme(userID int32) (ime.Target, bool)
}

// Connector starts and stops IME extension processes
type Connector interface {
	Connect(ctx context.Context, want ability.Want) error
	Disconnect(want ability.Want) error
	ForceStop(want ability.Want) error
}

// ForegroundUser reports which OS user is in front
type ForegroundUser interface {
	ForegroundUserID() int32
}

// ScreenLock reports whether the screen is locked
type ScreenLock interface {
	IsScreenLocked() bool
}

// DisplayGroups maps a display to its display group
type DisplayGroups interface {
	DisplayGroupOf(displayID uint64) uint64
}

// Policy holds the timing and mode knobs of a session
type Policy struct {
	StartTimeout  time.Duration
	StopTimeout   time.Duration
	RestartMax    int
	RestartWindow time.Duration
	SceneBoard    bool
}

// DefaultPolicy returns the production timings
func DefaultPolicy() Policy {
	return Policy{
		StartTimeout:  5 * time.Second,
		StopTimeout:   2 * time.Second,
		RestartMax:    3,
		RestartWindow: 3 * time.Second,
	}
}

// Deps wires a session to its collaborators. Logger, Metrics, Clock,
// Accounts, Lock and Displays may be nil.
type Deps struct {
	UserID         int32
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
	Watcher        *ipc.DeathWatcher
	Poster         Poster
	Inquirer       ImeInquirer
	Settings       ImeSettings
	Connector      Connector
	Accounts       ForegroundUser
	Lock           ScreenLock
	Displays       DisplayGroups
	Processes      ime.ProcessController
	Clock          clock.Clock
	ControlChannel ipc.Handle
	Policy         Policy
}

// StartInputResult is returned to a client after a successful bind
type StartInputResult struct {
	Agent     ipc.Handle
	Ime       protocol.ImeProcessInfo
	SessionID uint32
}

// Session is the input method state of one OS user. Mutating operations
// run on the service's consumer goroutine; OnSetCoreAndAgent, IsPanelShown
// and Dump are safe from any goroutine.
type Session struct {
	userID  int32
	deps    Deps
	policy  Policy
	logger  *zap.Logger
	metrics *monitoring.Metrics
	clock   clock.Clock
	budget  *resilience.Budget

	groupsMu sync.Mutex
	groups   map[uint64]*client.Group

	imeMu   sync.Mutex
	imeData map[ime.Type]*ime.Data

	stateMu       sync.Mutex
	nextSessionID uint32
	inputType     protocol.InputType
	inputTypeIme  ime.Target
}

// New creates the session of deps.UserID.
func New(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	policy, def := deps.Policy, DefaultPolicy()
	if policy.StartTimeout <= 0 {
		policy.StartTimeout = def.StartTimeout
	}
	if policy.StopTimeout <= 0 {
		policy.StopTimeout = def.StopTimeout
	}
	if policy.RestartMax == 0 && policy.RestartWindow == 0 {
		policy.RestartMax, policy.RestartWindow = def.RestartMax, def.RestartWindow
	}

	s := &Session{
		userID:    deps.UserID,
		deps:      deps,
		policy:    policy,
		logger:    deps.Logger.Named("session").With(zap.Int32("user_id", deps.UserID)),
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		budget:    resilience.NewBudget(policy.RestartMax, policy.RestartWindow, deps.Clock),
		groups:    make(map[uint64]*client.Group),
		imeData:   make(map[ime.Type]*ime.Data),
		inputType: protocol.InputTypeNone,
	}
	return s
}

// UserID returns the OS user the session serves
func (s *Session) UserID() int32 { return s.userID }

func (s *Session) userLabel() string { return strconv.Itoa(int(s.userID)) }

func (s *Session) displayGroupOf(displayID uint64) uint64 {
	if s.deps.Displays == nil {
		return DefaultDisplayGroup
	}
	return s.deps.Displays.DisplayGroupOf(displayID)
}

// group returns the group of displayGroupID, creating it when create is set
func (s *Session) group(displayGroupID uint64, create bool) *client.Group {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	g, ok := s.groups[displayGroupID]
	if !ok && create {
		g = client.NewGroup(displayGroupID, s.deps.Watcher, s.onClientDeath, s.logger)
		s.groups[displayGroupID] = g
	}
	return g
}

func (s *Session) allGroups() []*client.Group {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	out := make([]*client.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}

// findClient locates h in any group
func (s *Session) findClient(h ipc.Handle) (*client.Group, *client.Info) {
	if h.IsZero() {
		return nil, nil
	}
	for _, g := range s.allGroups() {
		if info := g.GetClientInfo(h); info != nil {
			return g, info
		}
	}
	return nil, nil
}

func (s *Session) getImeData(t ime.Type) *ime.Data {
	s.imeMu.Lock()
	defer s.imeMu.Unlock()
	return s.imeData[t]
}

// getReadyImeData returns the data of role t if its core is registered
func (s *Session) getReadyImeData(t ime.Type) *ime.Data {
	data := s.getImeData(t)
	if data == nil || data.Status() != ime.StatusReady || data.Core() == nil {
		return nil
	}
	return data
}

func (s *Session) setImeData(data *ime.Data) {
	s.imeMu.Lock()
	s.imeData[data.Type] = data
	s.imeMu.Unlock()
}

// removeImeData drops the data of its role if it is still the stored one
func (s *Session) removeImeData(data *ime.Data) {
	s.imeMu.Lock()
	if s.imeData[data.Type] == data {
		delete(s.imeData, data.Type)
	}
	s.imeMu.Unlock()
}

func (s *Session) nextSession() uint32 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.nextSessionID++
	if s.nextSessionID == 0 {
		s.nextSessionID = 1
	}
	return s.nextSessionID
}

func (s *Session) post(msg *message.Message) {
	if s.deps.Poster == nil {
		return
	}
	if err := s.deps.Poster.Push(msg); err != nil {
		s.logger.Warn("post failed", zap.Stringer("msg", msg.ID), zap.Error(err))
	}
}

// requestIme runs one call on data's core behind the freeze gate and
// records it.
func (s *Session) requestIme(data *ime.Data, t ime.RequestType, method string, fn func(protocol.InputMethodCore) error) error {
	if data == nil {
		return errs.ErrorImeNotStarted
	}
	core := data.Core()
	if core == nil {
		return errs.ErrorImeNotReady
	}
	freeze := data.Freeze()
	if freeze != nil {
		if !freeze.IsIpcNeeded(t) {
			s.metrics.RecordIPCSkipped(method)
			return nil
		}
		freeze.BeforeIpc(t)
	}

	timer := monitoring.NewTimer(s.metrics, method)
	err := fn(core)
	timer.Stop(err)

	if freeze != nil {
		freeze.AfterIpc(t, err == nil)
	}
	if err != nil {
		s.logger.Warn("ime call failed",
			zap.String("method", method),
			zap.String("ime", data.BundleName),
			zap.Error(err),
		)
	}
	return err
}

func (s *Session) want(t ime.Target) ability.Want {
	return ability.Want{UserID: s.userID, BundleName: t.BundleName, AbilityName: t.ExtensionName}
}

func (s *Session) updateBoundGauge() {
	n := 0
	for _, g := range s.allGroups() {
		for _, info := range g.Clients() {
			if info.IsBound() {
				n++
			}
		}
	}
	s.metrics.SetBoundClients(s.userLabel(), n)
}
