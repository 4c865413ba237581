package api

import (
	"github.com/listenupapp/novelvault/internal/domain"
	domainerrors "github.com/listenupapp/novelvault/internal/errors"
)

// parseWorkID validates a work ID path parameter.
func parseWorkID(raw string) (domain.WorkID, error) {
	id, err := domain.ParseWorkID(raw)
	if err != nil {
		return "", domainerrors.Validationf("invalid work id %q: expected <source>_<id>", raw)
	}
	return id, nil
}

// listLimit applies the default and upper bound to a limit query parameter.
func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
