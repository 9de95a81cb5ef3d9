package risk

import "errors"

var (
	ErrDailyLossLimit  = errors.New("daily loss limit reached")
	ErrPositionLimit   = errors.New("position limit reached")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("invalid price")
)
