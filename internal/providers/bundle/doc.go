// Package bundle answers which input methods are installed, what they are
// called, which subtypes they offer and which security mode they run in.
package bundle
