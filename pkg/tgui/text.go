package tgui

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	head := TakeRunes(s, n)
	if len(head) == len(s) {
		return s
	}
	return head + "…"
}

// TakeRunes returns the prefix of s holding at most n runes.
func TakeRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
