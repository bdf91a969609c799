package service

import "errors"

// ErrOffline is returned when a sync is requested while the device is
// flagged offline. Local edits keep accumulating; nothing is lost.
var ErrOffline = errors.New("device is offline")
