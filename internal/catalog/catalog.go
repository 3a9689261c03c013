// Package catalog keeps the most recently fetched measurement catalog and
// resolves query results back to the measurements they belong to.
//
// Query results only carry the per-database measurement index. The index is
// kept in an in-memory LRU keyed by (database id, index), so a very large
// catalog evicts the least recently resolved entries instead of growing
// without bound.
package catalog

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/rtclient/internal/models"
)

// DefaultCacheSize is the number of measurements kept resolvable.
const DefaultCacheSize = 10000

// Lister fetches the measurement catalog.
type Lister interface {
	ListMeasurements(ctx context.Context) ([]models.Measurement, error)
}

type key struct {
	databaseID int
	index      int
}

// Catalog caches the measurement list and an index over it.
type Catalog struct {
	lister Lister
	logger logrus.FieldLogger
	cache  *lru.Cache

	mu           sync.RWMutex
	measurements []models.Measurement
}

// New returns a catalog backed by lister holding up to size measurements in
// its lookup index.
func New(lister Lister, size int, logger logrus.FieldLogger) (*Catalog, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("catalog: create cache: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Catalog{
		lister: lister,
		logger: logger,
		cache:  cache,
	}, nil
}

// Refresh fetches the catalog and replaces the cached copy. On failure the
// previous catalog stays in place.
func (c *Catalog) Refresh(ctx context.Context) ([]models.Measurement, error) {
	measurements, err := c.lister.ListMeasurements(ctx)
	if err != nil {
		return nil, err
	}
	c.Load(measurements)

	c.logger.WithFields(logrus.Fields{
		"measurements": len(measurements),
	}).Info("Measurement catalog refreshed")

	return measurements, nil
}

// Load replaces the catalog with measurements.
func (c *Catalog) Load(measurements []models.Measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Purge()
	for _, m := range measurements {
		c.cache.Add(key{databaseID: m.DatabaseID, index: m.Index}, m)
	}
	c.measurements = append([]models.Measurement(nil), measurements...)
}

// Measurements returns the last loaded catalog.
func (c *Catalog) Measurements() []models.Measurement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Measurement(nil), c.measurements...)
}

// Lookup returns the measurement with the given per-database index.
func (c *Catalog) Lookup(databaseID, index int) (models.Measurement, bool) {
	v, ok := c.cache.Get(key{databaseID: databaseID, index: index})
	if !ok {
		return models.Measurement{}, false
	}
	return v.(models.Measurement), true
}

// Resolve returns the measurement a value from a query on databaseID belongs to.
func (c *Catalog) Resolve(databaseID int, v models.MeasurementValue) (models.Measurement, bool) {
	return c.Lookup(databaseID, v.Index)
}

// Len returns the number of resolvable measurements.
func (c *Catalog) Len() int {
	return c.cache.Len()
}
