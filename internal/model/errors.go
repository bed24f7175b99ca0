package model

import "errors"

// ErrInvalidLimit is the fatal configuration error class: it aborts a run
// before any stage executes. All other irregularities are absorbed into
// audit or lifecycle records.
var ErrInvalidLimit = errors.New("invalid risk limit")

// ErrBookShare reports a multi-book request whose total capital share is
// not positive.
var ErrBookShare = errors.New("total strategy book capital share must be positive")
