package imsa

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/message"
)

// controlChannel serves IMEs calling back into the service. Both calls
// return without waiting on the pump: the consumer may be blocked inside
// a call to the same IME.
type controlChannel struct {
	svc *Service
}

func (c *controlChannel) HideKeyboardSelf() error {
	user := c.svc.ForegroundUserID()
	return c.svc.queue.Push(message.New(message.MsgHideKeyboardSelf, message.UserPayload(user)))
}

// SwitchInputMethod persists the requested IME; the settings subscription
// turns the write into a switch.
func (c *controlChannel) SwitchInputMethod(bundleName, subName string) error {
	user := c.svc.ForegroundUserID()
	target, err := c.svc.deps.Inquirer.Target(user, bundleName, subName)
	if err != nil {
		return err
	}
	c.svc.logger.Info("ime requested switch", zap.Int32("user_id", user), zap.Stringer("ime", target))
	return c.svc.deps.Settings.SetCurrentIme(user, target)
}
