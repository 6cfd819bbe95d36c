package bridge

import "errors"

// ErrAlreadyTaken is returned by TakeRx/TakeTx when that half of the bridge
// has already been claimed by an earlier pipe or router task.
var ErrAlreadyTaken = errors.New("bridge: half already taken")
