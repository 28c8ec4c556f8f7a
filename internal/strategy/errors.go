package strategy

import "errors"

var (
	// ErrInvalidTick is returned for ticks that break the input contract:
	// non-finite or non-positive price, negative volume, or a timestamp that
	// moves backward. The engine state is left untouched.
	ErrInvalidTick = errors.New("strategy: invalid tick")

	// ErrInvalidConfig is returned by Config.Validate and New.
	ErrInvalidConfig = errors.New("strategy: invalid config")

	// ErrAlreadyStarted is returned by Preload once ticks have been processed.
	ErrAlreadyStarted = errors.New("strategy: engine already started")
)
