package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "control-cloud/internal/telemetry/domain"
)

const defaultKeyPattern = "point:%s:latest"

// LatestReader reads the point:{id}:latest snapshots written by collectors.
type LatestReader struct {
	client goredis.Cmdable
}

// NewLatestReader constructs a reader.
func NewLatestReader(client goredis.Cmdable) *LatestReader {
	return &LatestReader{client: client}
}

type latestPayload struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Quality   string          `json:"quality"`
}

// ReadCurrentValue returns the cached value; ok is false on a cache miss.
func (r *LatestReader) ReadCurrentValue(ctx context.Context, pointID string) (telemetry.CurrentValue, bool, error) {
	if r == nil || r.client == nil {
		return telemetry.CurrentValue{}, false, errors.New("redis latest reader: nil client")
	}
	if pointID == "" {
		return telemetry.CurrentValue{}, false, errors.New("redis latest reader: empty point id")
	}
	raw, err := r.client.Get(ctx, LatestKey(pointID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return telemetry.CurrentValue{}, false, nil
		}
		return telemetry.CurrentValue{}, false, err
	}
	value, err := DecodeLatest(pointID, raw)
	if err != nil {
		return telemetry.CurrentValue{}, false, err
	}
	return value, value.Value != "", nil
}

// LatestKey returns the cache key for a point.
func LatestKey(pointID string) string {
	return strings.Replace(defaultKeyPattern, "%s", pointID, 1)
}

// DecodeLatest parses a latest-value payload. The value may be a JSON
// string or a bare number/boolean.
func DecodeLatest(pointID string, raw []byte) (telemetry.CurrentValue, error) {
	var payload latestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return telemetry.CurrentValue{}, err
	}
	value := strings.TrimSpace(string(payload.Value))
	var text string
	if err := json.Unmarshal(payload.Value, &text); err == nil {
		value = text
	} else if value == "null" {
		value = ""
	}
	current := telemetry.CurrentValue{
		PointID: pointID,
		Value:   value,
		Quality: payload.Quality,
		Source:  "redis",
	}
	if payload.Timestamp > 0 {
		current.Timestamp = time.UnixMilli(payload.Timestamp).UTC()
	}
	return current, nil
}
