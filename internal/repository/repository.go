// Package repository contains data access abstractions for the document registry.
// Implementations live in subpackages (e.g. postgres).
package repository

import "errors"

// ErrNotFound is returned when no row matches the requested ID.
var ErrNotFound = errors.New("record not found")
