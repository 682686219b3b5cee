package probe

import (
	"context"

	"github.com/hamed0406/resymon/internal/domain"
)

// Checker performs one availability check and writes the outcome into m.
// Implementations must set m.LastChecked before returning, including when
// they handle a failure themselves.
type Checker interface {
	Check(ctx context.Context, m *domain.Monitor) error
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context, m *domain.Monitor) error

func (f CheckerFunc) Check(ctx context.Context, m *domain.Monitor) error { return f(ctx, m) }
