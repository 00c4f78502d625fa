package canonical

import "github.com/juju/errors"

const (
	ErrNonStringMapKey = errors.ConstError("map keys must be strings")
	ErrUnsupportedType = errors.ConstError("unsupported type for canonicalization")
	ErrKeyCollision    = errors.ConstError("normalized map key collision")
	ErrNonFiniteNumber = errors.ConstError("non-finite numbers are not allowed")
)
