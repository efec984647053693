// Package middleware holds the gin middleware of the admin API.
package middleware
