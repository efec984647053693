// Package strutil holds UTF-16 aware helpers for untrusted text that is
// stored or logged with a character budget.
//
// Character counts are UTF-16 code units with surrogate pairs counted as one
// character, which is what clients measure placeholder text in.
package strutil

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// MaxPlaceholderChars bounds the placeholder text carried in an input attribute.
	MaxPlaceholderChars = 255
	// MaxAbilityNameChars bounds the ability name carried in an input attribute.
	MaxAbilityNameChars = 127
)

const hexDigits = "0123456789ABCDEF"

// CountUtf16Chars returns the number of characters in s, counting a
// surrogate pair as a single character.
func CountUtf16Chars(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateUtf16String returns the longest prefix of s holding at most
// maxChars characters. A surrogate pair is never split.
func TruncateUtf16String(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i]
		}
		count++
	}
	return s
}

// TruncateUtf16 is TruncateUtf16String for text already held as UTF-16.
func TruncateUtf16(units []uint16, maxChars int) []uint16 {
	if maxChars <= 0 {
		return []uint16{}
	}
	count := 0
	for i := 0; i < len(units); i++ {
		if count == maxChars {
			return units[:i]
		}
		if utf16.IsSurrogate(rune(units[i])) && i+1 < len(units) &&
			utf16.DecodeRune(rune(units[i]), rune(units[i+1])) != utf8.RuneError {
			i++
		}
		count++
	}
	return units
}

// ToHex renders every byte of s as two uppercase hexadecimal digits.
func ToHex(s string) string {
	if s == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		sb.WriteByte(hexDigits[s[i]>>4])
		sb.WriteByte(hexDigits[s[i]&0x0F])
	}
	return sb.String()
}

// ToHex16 renders every UTF-16 code unit as four uppercase hexadecimal digits.
func ToHex16(units []uint16) string {
	if len(units) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(units) * 4)
	for _, u := range units {
		sb.WriteByte(hexDigits[(u>>12)&0x0F])
		sb.WriteByte(hexDigits[(u>>8)&0x0F])
		sb.WriteByte(hexDigits[(u>>4)&0x0F])
		sb.WriteByte(hexDigits[u&0x0F])
	}
	return sb.String()
}

// ToHexUTF16 encodes s as UTF-16 and renders it with ToHex16.
func ToHexUTF16(s string) string {
	return ToHex16(utf16.Encode([]rune(s)))
}
