package query

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/rtclient/internal/models"
)

// ValuesFetcher runs a single-block value query.
type ValuesFetcher interface {
	FetchValues(ctx context.Context, req models.QueryRequest) ([]models.MeasurementValue, error)
}

// BlockResult is the outcome of one block query. Err is set when the query
// failed; Values then is nil.
type BlockResult struct {
	Group   GroupKey
	Number  int // 1-based within the group
	Indexes []string
	Values  []models.MeasurementValue
	Err     error
}

// BlockFunc receives each block result. Returning an error stops the run;
// returning nil after a failed block moves on to the next one.
type BlockFunc func(BlockResult) error

// Orchestrator issues block queries sequentially.
type Orchestrator struct {
	fetcher   ValuesFetcher
	cfg       Config
	validator *WindowValidator
	logger    logrus.FieldLogger
	blocks    *prometheus.CounterVec
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets the logger receiving per-block events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Orchestrator) error {
		o.logger = logger
		return nil
	}
}

// WithMetrics registers a block counter on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *Orchestrator) error {
		blocks := prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtclient_blocks_total",
				Help: "Total block queries by result",
			},
			[]string{"result"},
		)
		if err := reg.Register(blocks); err != nil {
			return err
		}
		o.blocks = blocks
		return nil
	}
}

// NewOrchestrator returns an orchestrator querying through fetcher.
func NewOrchestrator(fetcher ValuesFetcher, cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.MaxBlockSize == 0 {
		cfg.MaxBlockSize = MaxBlockSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		fetcher:   fetcher,
		cfg:       cfg,
		validator: NewWindowValidator(cfg.rawMaxWindow()),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Config returns the batching configuration in use.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run queries every group over [start, end), block by block in catalog
// order, and passes each block's result to fn. No two requests are ever in
// flight at once. The time range is validated before the first request;
// the MaxWindow limit only applies to raw-resolution window periods.
func (o *Orchestrator) Run(ctx context.Context, groups []Group, start, end time.Time, fn BlockFunc) error {
	if err := o.validator.Validate(start, end); err != nil {
		return err
	}

	for _, group := range groups {
		for i, block := range Partition(group.Measurements, o.cfg.BlockSize) {
			if err := ctx.Err(); err != nil {
				return err
			}

			result := o.runBlock(ctx, group.Key, i+1, block, start, end)
			if err := fn(result); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) runBlock(ctx context.Context, key GroupKey, number int, block []models.Measurement, start, end time.Time) BlockResult {
	result := BlockResult{
		Group:   key,
		Number:  number,
		Indexes: Indexes(block),
	}

	began := time.Now()
	result.Values, result.Err = o.fetcher.FetchValues(ctx, models.QueryRequest{
		DatabaseID:         key.DatabaseID,
		MeasurementIndexes: result.Indexes,
		StartTime:          models.NewTimestamp(start),
		EndTime:            models.NewTimestamp(end),
		AggFunction:        key.AggFunction,
		WindowPeriod:       o.cfg.WindowPeriod,
	})

	entry := o.logger.WithFields(logrus.Fields{
		"database_id":  key.DatabaseID,
		"aggregation":  key.AggFunction,
		"block":        number,
		"measurements": len(block),
		"duration":     time.Since(began).String(),
	})
	if result.Err != nil {
		entry.WithError(result.Err).Error("Block query failed")
		o.count("error")
		return result
	}
	entry.WithField("values", len(result.Values)).Debug("Block query completed")
	o.count("success")
	return result
}

func (o *Orchestrator) count(result string) {
	if o.blocks != nil {
		o.blocks.WithLabelValues(result).Inc()
	}
}
