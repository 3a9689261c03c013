package query

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
	"github.com/tejusbharadwaj/rtclient/internal/models"
)

var windowPeriodPattern = regexp.MustCompile(`^([1-9][0-9]*)(ns|us|µs|ms|s|m|h|d|w)$`)

// parseWindowPeriod returns the bucket width of period. An empty period is
// the API default.
func parseWindowPeriod(period string) (time.Duration, error) {
	if period == "" {
		period = models.DefaultWindowPeriod
	}
	m := windowPeriodPattern.FindStringSubmatch(period)
	if m == nil {
		return 0, apierrors.New(apierrors.ErrCodeInvalidArgument, fmt.Sprintf("invalid window period: %s", period))
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, apierrors.Wrap(apierrors.ErrCodeInvalidArgument, fmt.Sprintf("invalid window period: %s", period), err)
	}
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(period)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.ErrCodeInvalidArgument, fmt.Sprintf("invalid window period: %s", period), err)
	}
	return d, nil
}

// WindowValidator checks a run's time range before any request is sent.
type WindowValidator struct {
	maxWindow time.Duration
}

// NewWindowValidator returns a validator rejecting ranges wider than
// maxWindow. Zero disables the width check.
func NewWindowValidator(maxWindow time.Duration) *WindowValidator {
	return &WindowValidator{maxWindow: maxWindow}
}

// Validate checks that start and end are set, ordered and not too far apart.
func (v *WindowValidator) Validate(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apierrors.New(apierrors.ErrCodeInvalidArgument, "missing timestamp")
	}

	if !start.Before(end) {
		return apierrors.New(apierrors.ErrCodeInvalidArgument, "start time must be before end time")
	}

	if v.maxWindow > 0 && end.Sub(start) > v.maxWindow {
		return apierrors.NewWithContext(apierrors.ErrCodeInvalidArgument,
			fmt.Sprintf("time range %s exceeds maximum %s", end.Sub(start), v.maxWindow),
			map[string]any{"start": start, "end": end})
	}

	return nil
}
