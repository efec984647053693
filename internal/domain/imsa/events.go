package imsa

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/message"
	"github.com/GriffinCanCode/imf/internal/ipc"
)

func (s *Service) registerHandlers() {
	s.pump.Register(message.MsgUserStart, s.withUser(s.onUserStart))
	s.pump.Register(message.MsgUserStop, s.withUser(s.onUserStop))
	s.pump.Register(message.MsgUserRemoved, s.withUser(s.onUserRemoved))
	s.pump.Register(message.MsgPackageAdded, s.withPackage(s.onPackageAdded))
	s.pump.Register(message.MsgPackageChanged, s.withPackage(s.onPackageChanged))
	s.pump.Register(message.MsgPackageRemoved, s.withPackage(s.onPackageRemoved))
	s.pump.Register(message.MsgBundleScanFinished, func(*message.Message) { s.ensureForegroundIme("bundle scan finished") })
	s.pump.Register(message.MsgBootCompleted, func(*message.Message) { s.ensureForegroundIme("boot completed") })
	s.pump.Register(message.MsgScreenUnlock, s.withUser(s.onScreenUnlock))
	s.pump.Register(message.MsgSelectByRange, s.onSelectByRange)
	s.pump.Register(message.MsgSelectByMovement, s.onSelectByMovement)
	s.pump.Register(message.MsgHideKeyboardSelf, s.withUser(s.onHideKeyboardSelf))
	s.pump.Register(message.MsgClientDied, s.onClientDied)
	s.pump.Register(message.MsgImeDied, s.onImeDied)
	s.pump.Register(message.MsgRestartIme, s.withUser(s.onRestartIme))
	s.pump.Register(message.MsgSettingsChanged, s.withUser(s.onSettingsChanged))
}

func (s *Service) withUser(fn func(userID int32)) message.HandlerFunc {
	return func(msg *message.Message) {
		userID, err := message.ReadUser(msg)
		if err != nil {
			s.logger.Error("bad payload", zap.Stringer("id", msg.ID), zap.Error(err))
			return
		}
		fn(userID)
	}
}

func (s *Service) withPackage(fn func(userID int32, bundleName string)) message.HandlerFunc {
	return func(msg *message.Message) {
		userID, bundle, err := message.ReadPackage(msg)
		if err != nil {
			s.logger.Error("bad payload", zap.Stringer("id", msg.ID), zap.Error(err))
			return
		}
		fn(userID, bundle)
	}
}

func (s *Service) post(msg *message.Message) {
	if err := s.queue.Push(msg); err != nil {
		s.logger.Warn("event dropped", zap.Stringer("id", msg.ID), zap.Error(err))
	}
}

// PostUserStart reports that userID came to the foreground
func (s *Service) PostUserStart(userID int32) {
	s.post(message.New(message.MsgUserStart, message.UserPayload(userID)))
}

// PostUserStop reports that userID was stopped
func (s *Service) PostUserStop(userID int32) {
	s.post(message.New(message.MsgUserStop, message.UserPayload(userID)))
}

// PostUserRemoved reports that userID was deleted
func (s *Service) PostUserRemoved(userID int32) {
	s.post(message.New(message.MsgUserRemoved, message.UserPayload(userID)))
}

// PostPackageEvent reports a package added, changed or removed for userID.
func (s *Service) PostPackageEvent(id message.ID, userID int32, bundleName string) {
	switch id {
	case message.MsgPackageAdded, message.MsgPackageChanged, message.MsgPackageRemoved:
		s.post(message.New(id, message.PackagePayload(userID, bundleName)))
	default:
		s.logger.Error("not a package event", zap.Stringer("id", id))
	}
}

// PostBootCompleted reports the end of boot
func (s *Service) PostBootCompleted() { s.post(message.New(message.MsgBootCompleted, nil)) }

// PostBundleScanFinished reports that installed bundles are known
func (s *Service) PostBundleScanFinished() {
	s.post(message.New(message.MsgBundleScanFinished, nil))
}

// PostScreenUnlock reports that userID unlocked the screen
func (s *Service) PostScreenUnlock(userID int32) {
	s.post(message.New(message.MsgScreenUnlock, message.UserPayload(userID)))
}

// SelectByRange asks the current editor of userID to select start..end
func (s *Service) SelectByRange(userID, start, end int32) {
	s.post(message.New(message.MsgSelectByRange, message.PairPayload(userID, start, end)))
}

// SelectByMovement asks the current editor of userID to move the cursor
func (s *Service) SelectByMovement(userID, direction, cursorMoveSkip int32) {
	s.post(message.New(message.MsgSelectByMovement, message.PairPayload(userID, direction, cursorMoveSkip)))
}

func (s *Service) onUserStart(userID int32) {
	prev := s.foreground.Swap(userID)
	if prev != userID {
		if old := s.session(prev); old != nil {
			if err := old.StopCurrentIme(); err != nil {
				s.logger.Warn("background user ime not stopped", zap.Int32("user_id", prev), zap.Error(err))
			}
		}
	}
	sess := s.ensureSession(userID)
	if err := sess.StartCurrentIme(false); err != nil {
		s.logger.Error("ime not started for user", zap.Int32("user_id", userID), zap.Error(err))
		return
	}
	s.syncApplied(userID, sess)
}

func (s *Service) onUserStop(userID int32) {
	sess := s.session(userID)
	if sess == nil {
		return
	}
	if err := sess.StopCurrentIme(); err != nil {
		s.logger.Warn("ime not stopped for stopped user", zap.Int32("user_id", userID), zap.Error(err))
	}
}

func (s *Service) onUserRemoved(userID int32) {
	if sess := s.removeSession(userID); sess != nil {
		sess.Close()
		s.logger.Info("session removed", zap.Int32("user_id", userID))
	}
}

func (s *Service) ensureForegroundIme(reason string) {
	user := s.ForegroundUserID()
	sess := s.ensureSession(user)
	if _, running := sess.CurrentIme(); running {
		return
	}
	s.logger.Info("starting ime", zap.String("reason", reason), zap.Int32("user_id", user))
	if err := sess.StartCurrentIme(false); err != nil {
		s.logger.Error("ime not started", zap.String("reason", reason), zap.Error(err))
	}
}

func (s *Service) onPackageAdded(userID int32, bundleName string) {
	if userID != s.ForegroundUserID() {
		return
	}
	configured, ok := s.deps.Settings.CurrentIme(userID)
	if !ok || configured.BundleName != bundleName {
		return
	}
	s.ensureForegroundIme("configured ime installed")
}

func (s *Service) onPackageChanged(userID int32, bundleName string) {
	s.logger.Debug("package changed", zap.Int32("user_id", userID), zap.String("bundle", bundleName))
}

// onPackageRemoved resets a user whose configured IME was uninstalled to
// the default before the session replaces the running one.
func (s *Service) onPackageRemoved(userID int32, bundleName string) {
	if configured, ok := s.deps.Settings.CurrentIme(userID); ok && configured.BundleName == bundleName {
		def := s.deps.Inquirer.GetDefaultIme()
		if err := s.deps.Settings.SetCurrentIme(userID, def); err != nil {
			s.logger.Warn("settings not reset", zap.Int32("user_id", userID), zap.Error(err))
		}
	}
	sess := s.session(userID)
	if sess == nil {
		return
	}
	if err := sess.OnPackageRemoved(bundleName); err != nil {
		s.logger.Error("replacing removed ime failed", zap.String("bundle", bundleName), zap.Error(err))
		return
	}
	s.syncApplied(userID, sess)
}

func (s *Service) onScreenUnlock(userID int32) {
	s.locked.Store(false)
	if sess := s.session(userID); sess != nil {
		if err := sess.OnScreenUnlock(); err != nil {
			s.logger.Warn("ime not restored after unlock", zap.Error(err))
		}
	}
}

func (s *Service) onSelectByRange(msg *message.Message) {
	userID, start, end, err := message.ReadPair(msg)
	if err != nil {
		s.logger.Error("bad payload", zap.Stringer("id", msg.ID), zap.Error(err))
		return
	}
	if sess := s.session(userID); sess != nil {
		if err := sess.OnSelectByRange(start, end); err != nil {
			s.logger.Debug("select by range failed", zap.Error(err))
		}
	}
}

func (s *Service) onSelectByMovement(msg *message.Message) {
	userID, direction, skip, err := message.ReadPair(msg)
	if err != nil {
		s.logger.Error("bad payload", zap.Stringer("id", msg.ID), zap.Error(err))
		return
	}
	if sess := s.session(userID); sess != nil {
		if err := sess.OnSelectByMovement(direction, skip); err != nil {
			s.logger.Debug("select by movement failed", zap.Error(err))
		}
	}
}

func (s *Service) onHideKeyboardSelf(userID int32) {
	if sess := s.session(userID); sess != nil {
		if err := sess.OnHideKeyboardSelf(ime.TypeIme); err != nil {
			s.logger.Debug("hide keyboard self ignored", zap.Error(err))
		}
	}
}

func (s *Service) readDeath(msg *message.Message) (int32, int32, ipc.Handle, bool) {
	userID, role, h, err := message.ReadDeath(msg)
	if err != nil {
		s.logger.Error("bad payload", zap.Stringer("id", msg.ID), zap.Error(err))
		return 0, 0, ipc.Handle{}, false
	}
	return userID, role, h, true
}

func (s *Service) onClientDied(msg *message.Message) {
	userID, _, h, ok := s.readDeath(msg)
	if !ok {
		return
	}
	if sess := s.session(userID); sess != nil {
		sess.OnClientDied(h)
	}
}

func (s *Service) onImeDied(msg *message.Message) {
	userID, role, h, ok := s.readDeath(msg)
	if !ok {
		return
	}
	if sess := s.session(userID); sess != nil {
		sess.OnImeDied(h, ime.Type(role))
	}
}

func (s *Service) onRestartIme(userID int32) {
	sess := s.session(userID)
	if sess == nil || userID != s.ForegroundUserID() {
		return
	}
	if err := sess.RestartIme(); err != nil {
		s.logger.Error("ime restart failed", zap.Int32("user_id", userID), zap.Error(err))
	}
}

// onSettingsChanged follows an external change of the configured IME.
// Changes the service made itself are already applied.
func (s *Service) onSettingsChanged(userID int32) {
	sess := s.session(userID)
	if sess == nil || userID != s.ForegroundUserID() {
		return
	}
	target, ok := s.deps.Settings.CurrentIme(userID)
	if !ok || target == s.applied(userID) {
		return
	}
	if !s.deps.Inquirer.IsInstalled(userID, target.BundleName) {
		s.logger.Warn("configured ime not installed", zap.Stringer("ime", target))
		return
	}
	if err := sess.OnSwitchIme(target); err != nil {
		s.logger.Error("switch to configured ime failed", zap.Stringer("ime", target), zap.Error(err))
		return
	}
	s.setApplied(userID, target)
}
