package models

import "errors"

// ErrNoMessage is returned when the queue is empty.
var ErrNoMessage = errors.New("no messages in queue")

// ErrNoSuchKey is returned when an object does not exist in its bucket.
var ErrNoSuchKey = errors.New("no such key")
