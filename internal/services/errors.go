package services

import (
	"errors"

	"github.com/blue-carbon-registry/apiserver/internal/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
