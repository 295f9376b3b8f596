package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

// MaxCallbackAnswerLen is the longest text answerCallbackQuery accepts, in characters.
const MaxCallbackAnswerLen = 200

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
