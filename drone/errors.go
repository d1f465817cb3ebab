package drone

import "errors"

var (
	ErrBind     = errors.New("udp bind failed")
	ErrSend     = errors.New("udp send failed")
	ErrDecode   = errors.New("response is not valid utf-8")
	ErrOverflow = errors.New("command queue full")
	ErrPayload  = errors.New("invalid command payload")
	ErrClosed   = errors.New("drone closed")
)
