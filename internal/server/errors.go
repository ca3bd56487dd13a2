package server

import "errors"

var (
	errUnknownFD  = errors.New("server: no connection for fd")
	errFullOutbox = errors.New("server: outbound queue full, line dropped")
)
