package cli

import "fmt"

type notFoundError struct {
	id string
}

func (e notFoundError) Error() string {
	return fmt.Sprintf("wishlist not found: %s", e.id)
}

func errNotFound(id string) error {
	return notFoundError{id: id}
}
