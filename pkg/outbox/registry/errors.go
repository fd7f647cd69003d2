package registry

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a publish failure that no retry can fix, such as an
// undecodable payload or an undeclared topic. The relay dead-letters these at once.
var ErrPermanent = errors.New("permanent publish failure")

// Permanent tags err with ErrPermanent and keeps it unwrappable.
func Permanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
