package relay

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"invitebot/internal/invite"
	"invitebot/internal/transport"
)

func TestRenderBody(t *testing.T) {
	t.Parallel()
	n := Notice{
		Invitation: invite.Invitation{ID: "inv1"},
		Sender:     invite.Player{ID: "p1", FirstName: "Anna"},
		Recipient:  invite.Player{ID: "p2", TelegramID: ptr(int64(123))},
		Game:       invite.Game{ID: "g1", Name: "Quick Match", Mode: invite.ModeNumbers, Prize: ptr("100 coins")},
	}
	got := Render(testWebApp, n)

	want := "🎮 <b>Новое приглашение в игру!</b>\n\n" +
		"👤 <b>Anna</b> приглашает вас в игру\n\n" +
		"📋 Название: <b>Quick Match</b>\n" +
		"🎯 Режим: 🔢 Цифры\n" +
		"🏆 Приз: 100 coins\n\n" +
		"Нажмите кнопку ниже чтобы присоединиться!"
	require.Equal(t, want, got.Text)
	require.EqualValues(t, 123, got.ChatID)
	require.Equal(t, "HTML", got.ParseMode)
	require.Equal(t, []transport.Action{
		{Kind: transport.ActionWebApp, Label: "✅ Вступить в игру", URL: testWebApp + "?startapp=game_g1"},
		{Kind: transport.ActionCallback, Label: "❌ Отклонить", Data: "reject_inv1"},
	}, got.Actions)
}

func TestRenderEscapesUserText(t *testing.T) {
	t.Parallel()
	n := Notice{
		Sender:    invite.Player{FirstName: "<script>"},
		Recipient: invite.Player{TelegramID: ptr(int64(1))},
		Game:      invite.Game{Name: "Tom & Jerry", Prize: ptr("<b>all</b>")},
	}
	got := Render(testWebApp, n).Text
	require.Contains(t, got, "<b>&lt;script&gt;</b>")
	require.Contains(t, got, "<b>Tom &amp; Jerry</b>")
	require.Contains(t, got, "🏆 Приз: &lt;b&gt;all&lt;/b&gt;")
}

func TestRenderBlankPrizeIsOmitted(t *testing.T) {
	t.Parallel()
	n := Notice{Recipient: invite.Player{TelegramID: ptr(int64(1))}, Game: invite.Game{Prize: ptr("  ")}}
	require.NotContains(t, Render(testWebApp, n).Text, "Приз")
}

func TestDisplayName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    invite.Player
		want string
	}{
		{name: "first name", p: invite.Player{ID: "p1", FirstName: "Anna", Login: "anna_l"}, want: "Anna"},
		{name: "login", p: invite.Player{ID: "p1", FirstName: "  ", Login: "anna_l"}, want: "anna_l"},
		{name: "nickname", p: invite.Player{ID: "p1", Nickname: "Annie"}, want: "Annie"},
		{name: "login before nickname", p: invite.Player{ID: "p1", Login: "anna_l", Nickname: "Annie"}, want: "anna_l"},
		{name: "short id", p: invite.Player{ID: "p1"}, want: "Игрок p1"},
		{name: "uuid", p: invite.Player{ID: "5f0c7d2e-9a41-4c3b-8f11-0d1e2a3b4c5d"}, want: "Игрок 5f0c7d2e"},
		{name: "nothing", p: invite.Player{}, want: "Игрок"},
		{name: "multibyte id", p: invite.Player{ID: "aигрок-42"}, want: "Игрок aигрок-4"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DisplayName(tt.p)
			require.Equal(t, tt.want, got)
			require.True(t, utf8.ValidString(got))
		})
	}
}

func TestRenderMultibyteSenderIDIsValidUTF8(t *testing.T) {
	t.Parallel()
	n := Notice{
		Invitation: invite.Invitation{ID: "inv1"},
		Sender:     invite.Player{ID: "игрок-номер-один"},
		Recipient:  invite.Player{TelegramID: ptr(int64(1))},
	}
	got := Render(testWebApp, n).Text
	require.True(t, utf8.ValidString(got))
	require.Contains(t, got, "<b>Игрок игрок-но</b>")
}

func TestGameNameAndMode(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Игра", GameName(invite.Game{}))
	require.Equal(t, "Duel", GameName(invite.Game{Name: " Duel "}))

	require.Equal(t, "🔢 Цифры", ModeLabel(invite.ModeNumbers))
	require.Equal(t, "📝 Слова", ModeLabel(invite.ModeWords))
	require.Equal(t, "📝 Слова", ModeLabel(invite.ModeBattleship))
	require.Equal(t, "📝 Слова", ModeLabel(""))
}

func TestDeepLink(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base, want string
	}{
		{base: "https://t.me/bot/app", want: "https://t.me/bot/app?startapp=game_g1"},
		{base: "https://app.example.com/?lang=ru", want: "https://app.example.com/?lang=ru&startapp=game_g1"},
		{base: "https://app.example.com/?startapp=old", want: "https://app.example.com/?startapp=game_g1"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DeepLink(tt.base, "g1"), tt.base)
	}
}
