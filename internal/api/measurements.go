package api

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/rtclient/internal/models"
)

// ListMeasurements fetches the full measurement catalog in server order.
// An empty response body is an empty catalog, not an error.
func (c *Client) ListMeasurements(ctx context.Context) ([]models.Measurement, error) {
	data, err := c.do(ctx, http.MethodGet, c.routes.measurements, nil)
	if err != nil {
		return nil, err
	}

	measurements, err := decodeList[models.Measurement](data, "measurements")
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"count": len(measurements),
	}).Debug("Fetched measurement catalog")

	return measurements, nil
}
