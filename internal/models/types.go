// Package models holds the wire contracts of the realtime telemetry API.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DefaultWindowPeriod is the bucket width used when a query does not name one.
const DefaultWindowPeriod = "200ms"

// zoneless is the layout the API uses for timestamps serialized without an offset.
const zoneless = "2006-01-02T15:04:05.999999999"

// Timestamp is a time.Time that round-trips through the API's date-time format.
// Values without a zone offset are read as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON writes the timestamp as RFC 3339 in UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`null`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO 8601 date-times.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte(`null`)) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(zoneless, s, time.UTC)
	if err != nil {
		return fmt.Errorf("timestamp: unsupported format %q", s)
	}
	t.Time = parsed
	return nil
}

// Measurement describes a single telemetry channel.
type Measurement struct {
	ID             int       `json:"id"`
	DatabaseID     int       `json:"databaseId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Tag            string    `json:"tag"`
	Index          int       `json:"index"`
	DataType       string    `json:"dataType"`
	MinValue       float64   `json:"minValue"`
	MaxValue       float64   `json:"maxValue"`
	UnitSymbol     string    `json:"unitSymbol"`
	FirstDataPoint Timestamp `json:"firstDataPoint"`
	DefaultAgg     string    `json:"defaultAgg"`
}

// IndexKey returns the per-database index in the string form queries expect.
func (m Measurement) IndexKey() string {
	return strconv.Itoa(m.Index)
}

// MeasurementValue is one aggregated sample returned by a query.
type MeasurementValue struct {
	Index     int       `json:"index"`
	Timestamp Timestamp `json:"timestamp"`
	Value     float64   `json:"value"`
}

// QueryRequest is the body of a time-series query.
type QueryRequest struct {
	DatabaseID         int       `json:"databaseId"`
	MeasurementIndexes []string  `json:"measurementIndexes"`
	StartTime          Timestamp `json:"startTime"`
	EndTime            Timestamp `json:"endTime"`
	AggFunction        string    `json:"aggFunction,omitempty"`
	WindowPeriod       string    `json:"windowPeriod,omitempty"`
}

// TokenRequest is the body of the client-credentials exchange.
type TokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// AuthToken is the result of a successful token exchange.
type AuthToken struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}
