package scanning

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type limitedScanner struct {
	limiter *rate.Limiter
	Scanner
}

// Limit wraps s so that calls to Scan wait for l. A nil limiter returns s unchanged.
func Limit(s Scanner, l *rate.Limiter) Scanner {
	if l == nil {
		return s
	}
	return &limitedScanner{limiter: l, Scanner: s}
}

func (s *limitedScanner) Scan(ctx context.Context, img Image) (*Recognition, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for %s rate limit: %w", s.Name(), err)
	}
	return s.Scanner.Scan(ctx, img)
}
