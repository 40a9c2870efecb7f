package utils

// TruncateEllipsis shortens s to at most max runes, appending "..."
// when anything was cut off.  Conversation titles use max=30 and
// list previews use max=60.
func TruncateEllipsis(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
