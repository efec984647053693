// Package builtin hosts headless input methods inside the service process.
//
// A builtin keyboard plays the part of an IME extension: the connector
// launches it under a fresh pid, it registers its core with the service and
// then accepts bindings like any out of process IME would. Deployments
// without real IME processes use it as the catalog default.
package builtin
