package adapter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "invitebot/internal/transport"
	"invitebot/pkg/tgui"
)

// Telegram accepts 4096 characters; leave room for entities.
const telegramTextLimit = 4000

// replyMarkup converts transport actions into an inline keyboard, one button per row.
func replyMarkup(actions []kit.Action) (*tele.ReplyMarkup, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	kb := tgui.NewInline()
	for i, act := range actions {
		btn, err := button(act)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		kb.Row(btn)
	}
	return kb.Markup(), nil
}

func button(act kit.Action) (tele.Btn, error) {
	if strings.TrimSpace(act.Label) == "" {
		return tele.Btn{}, fmt.Errorf("%s button without label", act.Kind)
	}
	switch act.Kind {
	case kit.ActionWebApp:
		if act.URL == "" {
			return tele.Btn{}, fmt.Errorf("web app button %q without url", act.Label)
		}
		return tgui.WebAppBtn(act.Label, act.URL), nil
	case kit.ActionURL:
		if act.URL == "" {
			return tele.Btn{}, fmt.Errorf("url button %q without url", act.Label)
		}
		return tgui.URLBtn(act.Label, act.URL), nil
	case kit.ActionCallback:
		if act.Data == "" {
			return tele.Btn{}, fmt.Errorf("callback button %q without data", act.Label)
		}
		if len(act.Data) > tgui.MaxCallbackDataLen {
			return tele.Btn{}, tgui.ErrCallbackDataTooLong
		}
		return tgui.Btn(act.Label, act.Data), nil
	default:
		return tele.Btn{}, fmt.Errorf("unknown action kind %q", act.Kind)
	}
}

// splitText cuts s into chunks of at most limit runes, preferring line breaks.
func splitText(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	var cur strings.Builder
	n := 0
	flush := func() {
		if chunk := strings.TrimRight(cur.String(), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		cur.Reset()
		n = 0
	}
	for _, line := range strings.SplitAfter(s, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit && n > 0 {
			flush()
		}
		for ln > limit {
			head := tgui.TakeRunes(line, limit)
			cur.WriteString(head)
			flush()
			line = line[len(head):]
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return out
}
