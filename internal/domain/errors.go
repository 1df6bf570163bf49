package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownPair      = errors.New("unknown pair")
	ErrSequenceGap      = errors.New("sequence gap")
	ErrCrossedBook      = errors.New("crossed book")
	ErrClosed           = errors.New("closed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrSubscribeTimeout = errors.New("subscription ack timeout")
)
