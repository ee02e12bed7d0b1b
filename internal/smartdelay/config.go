package smartdelay

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid smart delay config")

// Category is the classifier's verdict on how complete a fragment looks.
type Category string

const (
	CategoryDirectQuestion Category = "DIRECT_QUESTION"
	CategoryLongStatement  Category = "LONG_STATEMENT"
	CategoryShortFragment  Category = "SHORT_FRAGMENT"
)

func (c Category) String() string {
	return string(c)
}

const (
	DefaultShortFragmentDelay = 3 * time.Second
	DefaultMaxDelay           = 10 * time.Second
	DefaultLongThreshold      = 120
)

// Delays is the per-category delay table.
type Delays struct {
	ShortFragment  time.Duration
	DirectQuestion time.Duration
	LongStatement  time.Duration
}

func (d Delays) For(c Category) time.Duration {
	switch c {
	case CategoryDirectQuestion:
		return d.DirectQuestion
	case CategoryLongStatement:
		return d.LongStatement
	default:
		return d.ShortFragment
	}
}

// Config is treated as an immutable snapshot once handed to the scheduler.
type Config struct {
	Delays Delays

	// MaxDelay caps the time between a queue's first pending fragment and its dispatch.
	MaxDelay time.Duration

	// LongThreshold is the rune count above which a fragment is considered self-contained.
	LongThreshold int
}

func DefaultConfig() Config {
	return Config{
		Delays: Delays{
			ShortFragment: DefaultShortFragmentDelay,
		},
		MaxDelay:      DefaultMaxDelay,
		LongThreshold: DefaultLongThreshold,
	}
}

func (c Config) Validate() error {
	if c.Delays.ShortFragment < 0 {
		return fmt.Errorf("%w: %s delay must not be negative", ErrInvalidConfig, CategoryShortFragment)
	}
	if c.Delays.DirectQuestion < 0 {
		return fmt.Errorf("%w: %s delay must not be negative", ErrInvalidConfig, CategoryDirectQuestion)
	}
	if c.Delays.LongStatement < 0 {
		return fmt.Errorf("%w: %s delay must not be negative", ErrInvalidConfig, CategoryLongStatement)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("%w: max delay must be positive", ErrInvalidConfig)
	}
	if c.LongThreshold <= 0 {
		return fmt.Errorf("%w: long threshold must be positive", ErrInvalidConfig)
	}
	return nil
}
