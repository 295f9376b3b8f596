package relay

import (
	"net/url"
	"strings"

	"invitebot/internal/invite"
	"invitebot/internal/transport"
	"invitebot/pkg/tgui"
)

const (
	fallbackPlayer = "Игрок"
	fallbackGame   = "Игра"
	idPrefixRunes  = 8

	labelNumbers = "🔢 Цифры"
	labelWords   = "📝 Слова"

	joinLabel   = "✅ Вступить в игру"
	rejectLabel = "❌ Отклонить"

	// RejectPrefix and AcceptPrefix start the callback data of invitation buttons.
	RejectPrefix = "reject_"
	AcceptPrefix = "accept_"
)

// Notification is a rendered invitation message.
type Notification struct {
	ChatID    int64
	Text      string
	ParseMode string
	Actions   []transport.Action
}

// Render builds the message for n. It has no side effects.
func Render(webAppURL string, n Notice) Notification {
	var b strings.Builder
	b.WriteString("🎮 <b>Новое приглашение в игру!</b>\n\n")
	b.WriteString("👤 " + tgui.B(DisplayName(n.Sender)).String() + " приглашает вас в игру\n\n")
	b.WriteString("📋 Название: " + tgui.B(GameName(n.Game)).String() + "\n")
	b.WriteString("🎯 Режим: " + ModeLabel(n.Game.Mode))
	if n.Game.Prize != nil && strings.TrimSpace(*n.Game.Prize) != "" {
		b.WriteString("\n🏆 Приз: " + tgui.Esc(strings.TrimSpace(*n.Game.Prize)).String())
	}
	b.WriteString("\n\nНажмите кнопку ниже чтобы присоединиться!")

	var chatID int64
	if n.Recipient.TelegramID != nil {
		chatID = *n.Recipient.TelegramID
	}
	return Notification{
		ChatID:    chatID,
		Text:      b.String(),
		ParseMode: "HTML",
		Actions: []transport.Action{
			{Kind: transport.ActionWebApp, Label: joinLabel, URL: DeepLink(webAppURL, n.Game.ID)},
			{Kind: transport.ActionCallback, Label: rejectLabel, Data: RejectPrefix + n.Invitation.ID},
		},
	}
}

// DisplayName picks the first non-empty of first name, login and nickname,
// then a synthesized label built from the player id.
func DisplayName(p invite.Player) string {
	for _, s := range []string{p.FirstName, p.Login, p.Nickname} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return fallbackPlayer
	}
	return fallbackPlayer + " " + tgui.TakeRunes(id, idPrefixRunes)
}

func GameName(g invite.Game) string {
	if s := strings.TrimSpace(g.Name); s != "" {
		return s
	}
	return fallbackGame
}

// ModeLabel maps a game mode to its display label. Anything but NUMBERS is
// shown as words, BATTLESHIP included.
func ModeLabel(m invite.Mode) string {
	if strings.EqualFold(string(m), string(invite.ModeNumbers)) {
		return labelNumbers
	}
	return labelWords
}

// DeepLink points the web app at a game: base?startapp=game_<id>.
// An existing query on base is preserved.
func DeepLink(base, gameID string) string {
	param := "game_" + gameID
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return base + "?startapp=" + url.QueryEscape(param)
	}
	q := u.Query()
	q.Set("startapp", param)
	u.RawQuery = q.Encode()
	return u.String()
}
