package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
	"github.com/tejusbharadwaj/rtclient/internal/models"
)

// FetchValues runs one time-series query for a single block of measurement
// indexes and returns the values in the order the server sent them.
//
// An empty index list returns an empty result without a request. An empty
// WindowPeriod defaults to models.DefaultWindowPeriod. The window width is
// not limited here; the server rejects raw-resolution windows wider than 30
// minutes and callers size their windows accordingly.
func (c *Client) FetchValues(ctx context.Context, req models.QueryRequest) ([]models.MeasurementValue, error) {
	if len(req.MeasurementIndexes) == 0 {
		return []models.MeasurementValue{}, nil
	}
	if !req.StartTime.Before(req.EndTime.Time) {
		return nil, apierrors.NewWithContext(apierrors.ErrCodeInvalidArgument,
			"api: start time must be before end time",
			map[string]any{"start": req.StartTime.Time, "end": req.EndTime.Time})
	}
	if req.WindowPeriod == "" {
		req.WindowPeriod = models.DefaultWindowPeriod
	}

	data, err := c.do(ctx, http.MethodPost, c.routes.query, req)
	if err != nil {
		return nil, err
	}

	values, err := decodeList[models.MeasurementValue](data, "query")
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"database_id": req.DatabaseID,
		"indexes":     len(req.MeasurementIndexes),
		"values":      len(values),
	}).Debug("Fetched measurement values")

	return values, nil
}
