// Package logging builds the service's zap logger.
//
// Production output is sampled JSON and development output is colored
// console text. Components receive a *zap.Logger, name themselves and tag
// entries with the user, IME and client they concern:
//
//	logger := logging.NewDefault()
//	sessLog := logger.ForUser(100).Named("session")
//	logging.ForIme(sessLog, bundle, pid).Info("ime ready")
//
// Text typed by the user is logged with Text, which records its size only.
package logging
