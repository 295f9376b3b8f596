package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	kit "invitebot/internal/transport"
	logx "invitebot/pkg/logx"
	"invitebot/pkg/tgui"
)

func TestReplyMarkupInvitationButtons(t *testing.T) {
	t.Parallel()
	rm, err := replyMarkup([]kit.Action{
		{Kind: kit.ActionWebApp, Label: "✅ Вступить в игру", URL: "https://app.example.com?startapp=game_g1"},
		{Kind: kit.ActionCallback, Label: "❌ Отклонить", Data: "reject_inv1"},
	})
	require.NoError(t, err)
	require.Len(t, rm.InlineKeyboard, 2)

	join := rm.InlineKeyboard[0][0]
	require.Equal(t, "✅ Вступить в игру", join.Text)
	require.NotNil(t, join.WebApp)
	require.Equal(t, "https://app.example.com?startapp=game_g1", join.WebApp.URL)

	reject := rm.InlineKeyboard[1][0]
	require.Equal(t, "reject_inv1", reject.Data)
	require.Nil(t, reject.WebApp)
}

func TestReplyMarkupEmpty(t *testing.T) {
	t.Parallel()
	rm, err := replyMarkup(nil)
	require.NoError(t, err)
	require.Nil(t, rm)
}

func TestReplyMarkupRejectsInvalidActions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		act  kit.Action
	}{
		{name: "no label", act: kit.Action{Kind: kit.ActionURL, URL: "https://x"}},
		{name: "webapp without url", act: kit.Action{Kind: kit.ActionWebApp, Label: "Play"}},
		{name: "callback without data", act: kit.Action{Kind: kit.ActionCallback, Label: "No"}},
		{name: "unknown kind", act: kit.Action{Kind: "poll", Label: "?"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := replyMarkup([]kit.Action{tt.act})
			require.Error(t, err)
		})
	}

	_, err := replyMarkup([]kit.Action{{Kind: kit.ActionCallback, Label: "No", Data: strings.Repeat("x", 65)}})
	require.ErrorIs(t, err, tgui.ErrCallbackDataTooLong)
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"short"}, splitText("short", 10))

	lines := strings.Repeat("строка\n", 10) // 7 runes per line
	chunks := splitText(lines, 20)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, utf8.RuneCountInString(c), 20)
		require.False(t, strings.HasSuffix(c, "\n"))
	}
	require.Equal(t, strings.TrimRight(lines, "\n"), strings.Join(chunks, "\n"))

	long := strings.Repeat("я", 45)
	chunks = splitText(long, 20)
	require.Equal(t, []string{strings.Repeat("я", 20), strings.Repeat("я", 20), strings.Repeat("я", 5)}, chunks)
}

func TestCallHonoursTimeoutAndContext(t *testing.T) {
	t.Parallel()
	a := newAdapter(Config{SendTimeout: 20 * time.Millisecond, RatePerSec: -1}, logx.Nop())
	require.Nil(t, a.limiter)

	block := make(chan struct{})
	defer close(block)

	err := a.call(context.Background(), func() error { <-block; return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.call(ctx, func() error { <-block; return nil })
	require.ErrorIs(t, err, context.Canceled)

	boom := errors.New("Bad Request: chat not found")
	require.ErrorIs(t, a.call(context.Background(), func() error { return boom }), boom)
}

func TestNewAdapterRateDefaults(t *testing.T) {
	t.Parallel()
	a := newAdapter(Config{}, logx.Nop())
	require.NotNil(t, a.limiter)
	require.InDelta(t, defaultRatePerSec, float64(a.limiter.Limit()), 0.001)

	a = newAdapter(Config{RatePerSec: 5}, logx.Nop())
	require.InDelta(t, 5, float64(a.limiter.Limit()), 0.001)
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "  "}, logx.Nop())
	require.Error(t, err)
}

func TestSendUpdateDropsWhenFull(t *testing.T) {
	t.Parallel()
	a := newAdapter(Config{}, logx.Nop())
	a.sendUpdate(kit.Update{Kind: kit.UpdateCallback}) // no consumer yet

	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))
	a.sendUpdate(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "1"}})
	a.sendUpdate(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "2"}})

	require.Equal(t, "1", (<-out).Callback.ID)
	require.EqualValues(t, 1, a.droppedUpdates.Load())
}
