package tgui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTMLHelpersEscape(t *testing.T) {
	t.Parallel()
	require.Equal(t, H("<b>a &lt; b</b>"), B("a < b"))
	require.Equal(t, "&#34;q&#34; &amp; x", Esc(`"q" & x`).String())
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "Привет", n: 10, want: "Привет"},
		{in: "Привет", n: 6, want: "Привет"},
		{in: "Привет", n: 3, want: "При…"},
		{in: "abc", n: 0, want: ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, TruncRunes(tt.in, tt.n), tt.in)
	}
	require.Equal(t, "🎮🎯", TakeRunes("🎮🎯📋", 2))
}

func TestInlineRows(t *testing.T) {
	t.Parallel()
	rm := NewInline().
		Row(WebAppBtn("Play", "https://app.example.com")).
		Row(Btn("No", "reject_1"), URLBtn("Site", "https://example.com")).
		Markup()

	require.Len(t, rm.InlineKeyboard, 2)
	require.Len(t, rm.InlineKeyboard[0], 1)
	require.NotNil(t, rm.InlineKeyboard[0][0].WebApp)
	require.Equal(t, "https://app.example.com", rm.InlineKeyboard[0][0].WebApp.URL)
	require.Equal(t, "reject_1", rm.InlineKeyboard[1][0].Data)
	require.Equal(t, "https://example.com", rm.InlineKeyboard[1][1].URL)
}
