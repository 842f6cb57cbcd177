package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrRoomNotFound      = fmt.Errorf("room not found")
	ErrNotRoomOwner      = fmt.Errorf("actor is not the room owner")
	ErrNotPrivileged     = fmt.Errorf("actor is neither owner nor moderator")
	ErrInsufficientFunds = fmt.Errorf("ledger refused the spend")
)
