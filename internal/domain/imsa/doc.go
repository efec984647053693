// Package imsa is the input method system ability: the process-wide
// service that owns one session per started OS user and serializes every
// mutation through a single message pump.
//
// Editors, IMEs and the window manager reach it through the Caller-based
// methods; system events (user switches, package changes, screen unlock)
// arrive through the Post methods and are handled in arrival order.
//
// Example Usage:
//
//	svc := imsa.New(imsa.Deps{
//		Logger:    logger,
//		Config:    cfg.Session,
//		Account:   cfg.Account,
//		System:    sys,
//		Registry:  reg,
//		Inquirer:  catalog,
//		Settings:  settings.NewImeSettings(store),
//		Accounts:  accounts,
//		Connector: connector,
//	})
//	if err := svc.Run(ctx); err != nil {
//		logger.Fatal("service failed", zap.Error(err))
//	}
package imsa
