// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders (callback, URL and web-app buttons)
//   - HTML-safe text for ParseMode="HTML"
//   - Rune-aware truncation
package tgui
