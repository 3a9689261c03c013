package query

import (
	"fmt"
	"time"

	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
	"github.com/tejusbharadwaj/rtclient/internal/models"
)

const (
	// MaxBlockSize is the most measurement indexes the server accepts in one query.
	MaxBlockSize = 20
	// DefaultBlockSize keeps individual queries well under MaxBlockSize.
	DefaultBlockSize = 10
	// MaxRawWindow is the widest raw-resolution window the server accepts.
	MaxRawWindow = 30 * time.Minute
	// RawPeriodCeiling is the widest window period still treated as raw
	// resolution. Coarser periods are aggregated server-side and are not
	// subject to MaxWindow.
	RawPeriodCeiling = time.Second
)

// Config controls how queries are batched.
type Config struct {
	// BlockSize is the number of measurements per query.
	BlockSize int
	// MaxBlockSize is the server-enforced ceiling BlockSize is checked against.
	MaxBlockSize int
	// WindowPeriod is the bucket width sent with every query.
	WindowPeriod string
	// MaxWindow rejects raw-resolution runs (WindowPeriod at most
	// RawPeriodCeiling) whose time range is wider. Zero disables the check.
	MaxWindow time.Duration
}

// DefaultConfig returns the batching defaults.
func DefaultConfig() Config {
	return Config{
		BlockSize:    DefaultBlockSize,
		MaxBlockSize: MaxBlockSize,
		WindowPeriod: models.DefaultWindowPeriod,
		MaxWindow:    MaxRawWindow,
	}
}

// Validate checks the block size against the ceiling and the window period format.
func (c Config) Validate() error {
	ceiling := c.MaxBlockSize
	if ceiling <= 0 {
		ceiling = MaxBlockSize
	}
	if ceiling > MaxBlockSize {
		return apierrors.New(apierrors.ErrCodeInvalidArgument,
			fmt.Sprintf("max block size %d exceeds server limit %d", ceiling, MaxBlockSize))
	}
	if c.BlockSize < 1 || c.BlockSize > ceiling {
		return apierrors.New(apierrors.ErrCodeInvalidArgument,
			fmt.Sprintf("block size must be between 1 and %d, got %d", ceiling, c.BlockSize))
	}
	if c.MaxWindow < 0 {
		return apierrors.New(apierrors.ErrCodeInvalidArgument, "max window must not be negative")
	}
	_, err := parseWindowPeriod(c.WindowPeriod)
	return err
}

// rawMaxWindow returns the range limit for this config's window period:
// MaxWindow for raw-resolution periods, zero (unlimited) otherwise.
func (c Config) rawMaxWindow() time.Duration {
	period, err := parseWindowPeriod(c.WindowPeriod)
	if err != nil || period > RawPeriodCeiling {
		return 0
	}
	return c.MaxWindow
}
