package middleware

import "errors"

// ErrEmptyClientID flags a request that sent client_id as an empty string.
var ErrEmptyClientID = errors.New("client_id must not be empty")
