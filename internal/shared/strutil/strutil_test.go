package strutil

import (
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUtf16String(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{name: "empty", in: "", maxChars: 3, want: ""},
		{name: "zero budget", in: "abc", maxChars: 0, want: ""},
		{name: "negative budget", in: "abc", maxChars: -1, want: ""},
		{name: "shorter than budget", in: "ab", maxChars: 5, want: "ab"},
		{name: "exact budget", in: "abc", maxChars: 3, want: "abc"},
		{name: "ascii cut", in: "abcdef", maxChars: 4, want: "abcd"},
		{name: "cjk cut", in: "你好世界", maxChars: 2, want: "你好"},
		{name: "surrogate pair kept whole", in: "a😀b", maxChars: 2, want: "a😀"},
		{name: "surrogate pair not split", in: "😀😀😀", maxChars: 1, want: "😀"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateUtf16String(tt.in, tt.maxChars)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(tt.in, got))
		})
	}
}

func TestTruncateCountProperty(t *testing.T) {
	inputs := []string{"", "a", "héllo", "😀x😀y", "混合mixed😀", strings.Repeat("字", 300)}
	for _, s := range inputs {
		for max := 0; max <= CountUtf16Chars(s)+2; max++ {
			got := TruncateUtf16String(s, max)
			want := max
			if n := CountUtf16Chars(s); n < want {
				want = n
			}
			assert.Equal(t, want, CountUtf16Chars(got), "input %q max %d", s, max)
			assert.True(t, strings.HasPrefix(s, got))
		}
	}
}

func TestTruncateUtf16(t *testing.T) {
	units := utf16.Encode([]rune("a😀b"))
	assert.Len(t, units, 4)

	assert.Equal(t, utf16.Encode([]rune("a")), TruncateUtf16(units, 1))
	assert.Equal(t, utf16.Encode([]rune("a😀")), TruncateUtf16(units, 2))
	assert.Equal(t, units, TruncateUtf16(units, 10))
	assert.Empty(t, TruncateUtf16(units, 0))
}

func TestToHex(t *testing.T) {
	assert.Equal(t, "", ToHex(""))
	assert.Equal(t, "61", ToHex("a"))
	assert.Equal(t, "0AFF", ToHex("\x0a\xff"))

	assert.Equal(t, "", ToHex16(nil))
	assert.Equal(t, "0061", ToHex16([]uint16{0x0061}))
	assert.Equal(t, "0061D83DDE00", ToHexUTF16("a😀"))
}
