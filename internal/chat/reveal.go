package chat

import (
	"context"
	"strings"
	"time"
)

// Revealer shows an already complete reply a word at a time.
type Revealer struct {
	Delay time.Duration
}

// Reveal calls render with a growing prefix of text, one word per step,
// waiting Delay between steps. The last render is text itself unless ctx
// is cancelled first. It returns the last rendered prefix.
func (r Revealer) Reveal(ctx context.Context, text string, render func(partial string)) string {
	shown := ""
	words := strings.SplitAfter(text, " ")
	for i, w := range words {
		shown += w
		render(shown)
		if i == len(words)-1 || r.Delay <= 0 {
			if err := ctx.Err(); err != nil {
				return shown
			}
			continue
		}

		timer := time.NewTimer(r.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return shown
		case <-timer.C:
		}
	}
	return shown
}
