// Package client keeps the per display group bookkeeping of attached text
// editors: who is registered, who is current, who is parked as inactive,
// and which notifications each one listens for.
package client
