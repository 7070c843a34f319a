package usecase

import (
	"fmt"

	"assistant-gateway/internal/domain"
)

const defaultContextWindow = 20

// ContextStrategy decides which turns of a transcript are sent to the
// completion service. It never affects what is persisted: the full sequence
// is always written back.
type ContextStrategy interface {
	Select(turns []domain.Turn) []domain.Turn
}

// fullHistory resends the entire transcript every turn. This is the default
// and matches the original behavior; it trades token cost for simplicity.
type fullHistory struct{}

func (fullHistory) Select(turns []domain.Turn) []domain.Turn {
	return turns
}

// slidingWindow keeps only the most recent n turns.
type slidingWindow struct {
	n int
}

func (w slidingWindow) Select(turns []domain.Turn) []domain.Turn {
	if len(turns) <= w.n {
		return turns
	}
	return turns[len(turns)-w.n:]
}

// NewContextStrategy builds a strategy from configuration. Known names are
// "full" (or empty) and "window"; window sizes below 1 fall back to the
// default.
func NewContextStrategy(name string, window int) (ContextStrategy, error) {
	switch name {
	case "", "full":
		return fullHistory{}, nil
	case "window":
		if window <= 0 {
			window = defaultContextWindow
		}
		return slidingWindow{n: window}, nil
	default:
		return nil, fmt.Errorf("usecase: unknown context strategy %q", name)
	}
}
