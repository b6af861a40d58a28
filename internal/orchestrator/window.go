package orchestrator

import "github.com/685Degrees/echo-reader/internal/player"

// Position maps the playback position onto text as a rune index, assuming
// speech advances through the text at a constant rate.
func Position(st player.State, text string) int {
	d := st.DisplayDuration()
	if d <= 0 || st.CurrentTime <= 0 {
		return 0
	}
	n := len([]rune(text))
	pos := int(st.CurrentTime / d * float64(n))
	if pos > n {
		pos = n
	}
	return pos
}

// HeardWindow returns at most trailing runes before pos and lookahead runes
// after it.
func HeardWindow(text string, pos, trailing, lookahead int) string {
	runes := []rune(text)
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}
	start := max(pos-max(trailing, 0), 0)
	end := min(pos+max(lookahead, 0), len(runes))
	return string(runes[start:end])
}
