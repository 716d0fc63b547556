package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Timestamp is a wall-clock instant in microseconds since the Unix epoch.
type Timestamp struct {
	Microseconds uint64 `json:"microseconds"`
}

// Now returns the current time, or ErrInvalidTimestamp when the clock reads
// before the epoch.
func Now() (Timestamp, error) {
	return TimestampOf(time.Now())
}

func TimestampOf(t time.Time) (Timestamp, error) {
	us := t.UnixMicro()
	if us < 0 {
		return Timestamp{}, fmt.Errorf("%w: %s is before the unix epoch", ErrInvalidTimestamp, t.Format(time.RFC3339))
	}
	return Timestamp{Microseconds: uint64(us)}, nil
}

func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t.Microseconds))
}

// Metric is a point-in-time value pushed by a client.
type Metric struct {
	ProjectName     string     `json:"project_name"`
	ServiceName     string     `json:"service_name"`
	MetricName      string     `json:"metric_name"`
	MetricTimestamp *Timestamp `json:"metric_timestamp"`
	MetricValue     float64    `json:"metric_value"`
}

// Record is one timed observation. A nil Timestamp means "now" on arrival.
type Record struct {
	ProjectName     string     `json:"project_name"`
	ServiceName     string     `json:"service_name"`
	RecordName      string     `json:"record_name"`
	GroupBy         string     `json:"group_by"`
	Timestamp       *Timestamp `json:"timestamp"`
	ExecutionTimeUs uint64     `json:"execution_time_us"`

	// Error is greater than zero for failed observations
	Error int64 `json:"error"`
}

func (r *Record) Failed() bool {
	return r.Error > 0
}

var errBadCommand = errors.New("command must carry exactly one of Metric or Record")

// Command is the datagram sent on the ingestion port. Exactly one field is
// set; on the wire it is the externally tagged form {"Record":{...}}.
type Command struct {
	Metric *Metric
	Record *Record
}

func (c Command) MarshalJSON() ([]byte, error) {
	switch {
	case c.Metric != nil && c.Record == nil:
		return json.Marshal(map[string]*Metric{"Metric": c.Metric})
	case c.Record != nil && c.Metric == nil:
		return json.Marshal(map[string]*Record{"Record": c.Record})
	default:
		return nil, errBadCommand
	}
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return errBadCommand
	}

	*c = Command{}
	for tag, body := range tagged {
		switch tag {
		case "Metric":
			c.Metric = &Metric{}
			if err := json.Unmarshal(body, c.Metric); err != nil {
				return fmt.Errorf("decode metric: %w", err)
			}
		case "Record":
			c.Record = &Record{}
			if err := json.Unmarshal(body, c.Record); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
		default:
			return fmt.Errorf("unknown command %q", tag)
		}
	}
	return nil
}
