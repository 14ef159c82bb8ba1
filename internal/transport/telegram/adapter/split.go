package adapter

import "strings"

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		// Don't split inside a tag for HTML parse mode.
		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
