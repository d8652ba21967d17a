package adapter

import "strings"

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and, for HTML, never cuts inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			// a newline in the last two thirds of the window
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}

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
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
