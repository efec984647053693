package imsa

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/message"
	"github.com/GriffinCanCode/imf/internal/domain/session"
	"github.com/GriffinCanCode/imf/internal/infrastructure/config"
	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/clock"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Inquirer answers questions about installed input methods
type Inquirer interface {
	session.ImeInquirer
	ListInputMethods(userID int32) []protocol.Property
	IsInstalled(userID int32, bundleName string) bool
	Target(userID int32, bundleName, subName string) (ime.Target, error)
}

// Settings reads, writes and follows the configured IME of each user
type Settings interface {
	session.ImeSettings
	SetCurrentIme(userID int32, t ime.Target) error
	OnCurrentImeChange(userID int32, fn func(ime.Target)) (cancel func())
}

// Accounts reports the OS users
type Accounts interface {
	ForegroundUserID() int32
	UserIDFromUID(uid int32) int32
	IsReady() bool
}

// Deps wires the service. Logger, Metrics, Clock, Displays and Processes
// may be nil; System defaults to config.DefaultSystemConfig.
type Deps struct {
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Config    config.SessionConfig
	Account   config.AccountConfig
	System    *config.SystemConfig
	Registry  *ipc.Registry
	Inquirer  Inquirer
	Settings  Settings
	Accounts  Accounts
	Connector session.Connector
	Processes ime.ProcessController
	Displays  session.DisplayGroups
	Clock     clock.Clock
	// Pid and Uid identify the service process in the registry.
	Pid int32
	Uid int32
}

type userState struct {
	sess    *session.Session
	cancel  func()
	applied ime.Target
}

// Service is the input method system ability. It owns the message pump
// and one session per started OS user.
type Service struct {
	deps    Deps
	logger  *zap.Logger
	metrics *monitoring.Metrics

	queue   *message.Queue
	pump    *message.Handler
	watcher *ipc.DeathWatcher
	control ipc.Handle

	foreground atomic.Int32
	locked     atomic.Bool
	started    atomic.Bool

	mu    sync.RWMutex
	users map[int32]*userState // Protected by mu
}

// New creates a stopped service
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.System == nil {
		deps.System = config.DefaultSystemConfig()
	}
	if deps.Config.CallTimeout <= 0 {
		deps.Config.CallTimeout = 10 * time.Second
	}

	logger := deps.Logger.Named("imsa")
	queue := message.NewQueue(deps.Config.QueueCapacity, logger, deps.Metrics)
	s := &Service{
		deps:    deps,
		logger:  logger,
		metrics: deps.Metrics,
		queue:   queue,
		pump:    message.NewHandler(queue, logger, deps.Metrics),
		watcher: ipc.NewDeathWatcher(deps.Registry),
		users:   make(map[int32]*userState),
	}
	s.registerHandlers()
	return s
}

// Start waits for the account service, starts the pump and brings up the
// session of the foreground user with its IME.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	policy := resilience.RetryPolicy{
		Attempts: s.deps.Account.ReadyRetries,
		Interval: s.deps.Account.ReadyInterval,
		Clock:    s.deps.Clock,
	}
	if err := resilience.Poll(ctx, policy, s.deps.Accounts.IsReady); err != nil {
		s.started.Store(false)
		return errs.Wrap(errs.ErrorServiceStartFailed, "account service not ready: %v", err)
	}

	s.control = s.deps.Registry.Register(protocol.NewControlStub(&controlChannel{svc: s}), s.deps.Pid, s.deps.Uid)
	go s.pump.Run()

	user := s.deps.Accounts.ForegroundUserID()
	s.logger.Info("input method service starting",
		zap.Int32("user_id", user),
		zap.Bool("scene_board", s.deps.Config.SceneBoard || s.deps.System.SceneBoard),
	)
	return s.pump.Call(ctx, func() { s.onUserStart(user) })
}

// Stop closes every session and stops the pump once queued work is done
func (s *Service) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Config.CallTimeout)
	defer cancel()
	if err := s.pump.Call(ctx, s.closeAll); err != nil {
		s.logger.Warn("sessions not closed cleanly", zap.Error(err))
	}
	if err := s.pump.Quit(); err != nil {
		s.logger.Warn("quit not queued", zap.Error(err))
	}
	<-s.pump.Done()
	s.deps.Registry.Unregister(s.control)
	s.logger.Info("input method service stopped")
}

// Run starts the service and stops it when ctx ends
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// ForegroundUserID is the user whose session owns the screen
func (s *Service) ForegroundUserID() int32 { return s.foreground.Load() }

// IsScreenLocked reports the last lock state the service was told
func (s *Service) IsScreenLocked() bool { return s.locked.Load() }

// SetScreenLocked records a lock. Unlocking goes through PostScreenUnlock
// so the session can switch back to the configured IME.
func (s *Service) SetScreenLocked(locked bool) {
	if !locked {
		s.PostScreenUnlock(s.ForegroundUserID())
		return
	}
	s.locked.Store(true)
}

// ControlChannel is the handle IMEs receive through
// InitInputControlChannel.
func (s *Service) ControlChannel() ipc.Handle { return s.control }

func (s *Service) policy() session.Policy {
	cfg := s.deps.Config
	return session.Policy{
		StartTimeout:  cfg.ImeStartTimeout,
		StopTimeout:   cfg.ImeStopTimeout,
		RestartMax:    cfg.RestartMax,
		RestartWindow: cfg.RestartWindow,
		SceneBoard:    cfg.SceneBoard || s.deps.System.SceneBoard,
	}
}

func (s *Service) session(userID int32) *session.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[userID]; ok {
		return st.sess
	}
	return nil
}

// ensureSession returns the session of userID, creating it on the
// consumer goroutine.
func (s *Service) ensureSession(userID int32) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[userID]; ok {
		return st.sess
	}

	sess := session.New(session.Deps{
		UserID:         userID,
		Logger:         s.deps.Logger,
		Metrics:        s.metrics,
		Watcher:        s.watcher,
		Poster:         s.queue,
		Inquirer:       s.deps.Inquirer,
		Settings:       s.deps.Settings,
		Connector:      s.deps.Connector,
		Accounts:       s,
		Lock:           s,
		Displays:       s.deps.Displays,
		Processes:      s.deps.Processes,
		Clock:          s.deps.Clock,
		ControlChannel: s.control,
		Policy:         s.policy(),
	})
	st := &userState{sess: sess}
	st.cancel = s.deps.Settings.OnCurrentImeChange(userID, func(ime.Target) {
		if err := s.queue.Push(message.New(message.MsgSettingsChanged, message.UserPayload(userID))); err != nil {
			s.logger.Warn("settings change dropped", zap.Int32("user_id", userID), zap.Error(err))
		}
	})
	s.users[userID] = st
	s.metrics.SetUsersActive(len(s.users))
	s.logger.Info("session created", zap.Int32("user_id", userID))
	return sess
}

func (s *Service) removeSession(userID int32) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[userID]
	if !ok {
		return nil
	}
	delete(s.users, userID)
	if st.cancel != nil {
		st.cancel()
	}
	s.metrics.SetUsersActive(len(s.users))
	return st.sess
}

func (s *Service) setApplied(userID int32, t ime.Target) {
	s.mu.Lock()
	if st, ok := s.users[userID]; ok {
		st.applied = t
	}
	s.mu.Unlock()
}

// syncApplied records the running IME as applied, with the configured
// subtype when the configured IME is the one running.
func (s *Service) syncApplied(userID int32, sess *session.Session) {
	running, ok := sess.CurrentIme()
	if !ok {
		return
	}
	if configured, ok := s.deps.Settings.CurrentIme(userID); ok && configured.Same(running) {
		running = configured
	}
	s.setApplied(userID, running)
}

func (s *Service) applied(userID int32) ime.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.users[userID]; ok {
		return st.applied
	}
	return ime.Target{}
}

// Users returns the ids of the users with a session, ascending
func (s *Service) Users() []int32 {
	s.mu.RLock()
	out := make([]int32, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) closeAll() {
	for _, id := range s.Users() {
		if sess := s.removeSession(id); sess != nil {
			sess.Close()
		}
	}
}
