// Package query turns a measurement catalog into a sequence of bounded,
// API-compliant value queries.
//
// Measurements are grouped by database and default aggregation, each group
// is cut into contiguous blocks of at most Config.BlockSize measurements,
// and the Orchestrator issues one query per block, one block at a time.
// Results are handed to the caller per block and never merged.
package query

import "github.com/tejusbharadwaj/rtclient/internal/models"

// GroupKey identifies measurements that can share a query.
type GroupKey struct {
	DatabaseID  int
	AggFunction string
}

// Group is a set of measurements sharing a GroupKey, in catalog order.
type Group struct {
	Key          GroupKey
	Measurements []models.Measurement
}

// GroupMeasurements groups measurements by database id and default
// aggregation. Groups appear in order of their first member; members keep
// their catalog order.
func GroupMeasurements(measurements []models.Measurement) []Group {
	var groups []Group
	positions := make(map[GroupKey]int)

	for _, m := range measurements {
		k := GroupKey{DatabaseID: m.DatabaseID, AggFunction: m.DefaultAgg}
		pos, ok := positions[k]
		if !ok {
			pos = len(groups)
			positions[k] = pos
			groups = append(groups, Group{Key: k})
		}
		groups[pos].Measurements = append(groups[pos].Measurements, m)
	}
	return groups
}

// Partition splits measurements into contiguous blocks of size elements;
// only the last block may be shorter. A non-positive size yields no blocks.
func Partition(measurements []models.Measurement, size int) [][]models.Measurement {
	if size <= 0 || len(measurements) == 0 {
		return nil
	}
	blocks := make([][]models.Measurement, 0, (len(measurements)+size-1)/size)
	for start := 0; start < len(measurements); start += size {
		end := start + size
		if end > len(measurements) {
			end = len(measurements)
		}
		blocks = append(blocks, measurements[start:end:end])
	}
	return blocks
}

// Indexes returns the query keys of a block, in order.
func Indexes(block []models.Measurement) []string {
	indexes := make([]string, len(block))
	for i, m := range block {
		indexes[i] = m.IndexKey()
	}
	return indexes
}
