package storage

import "errors"

// ErrNotFound is returned when a requested decision does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrImmutableField is returned when put() targets a reviewed record with
// changes to fields that are frozen after review.
var ErrImmutableField = errors.New("storage: field is immutable after review")

// ErrIDCollision names a content-derived ID that already exists under
// different content. No Store method returns it: the dispatcher's
// deriveUniqueID detects a collision itself and re-derives with a higher salt.
var ErrIDCollision = errors.New("storage: id collision")
