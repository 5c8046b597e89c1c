package commands

import (
	"context"
	"errors"
	"log"

	telemetry "control-cloud/internal/telemetry/domain"
)

// Source is a single current-value backend.
type Source interface {
	ReadCurrentValue(ctx context.Context, pointID string) (telemetry.CurrentValue, bool, error)
}

// NamedSource pairs a backend with its label for logs.
type NamedSource struct {
	Name   string
	Source Source
}

// ChainReader serves command verification from the first source holding a
// usable value for the point.
type ChainReader struct {
	sources []NamedSource
	logger  *log.Logger
}

// NewChainReader constructs a ChainReader.
func NewChainReader(logger *log.Logger, sources ...NamedSource) (*ChainReader, error) {
	if len(sources) == 0 {
		return nil, errors.New("commands value reader: no sources")
	}
	for _, src := range sources {
		if src.Source == nil {
			return nil, errors.New("commands value reader: nil source " + src.Name)
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ChainReader{sources: sources, logger: logger}, nil
}

// ReadCurrentValue tries each source in order. A source error is logged and
// the next source is tried; the last error is returned when nothing usable
// was found.
func (r *ChainReader) ReadCurrentValue(ctx context.Context, pointID string) (telemetry.CurrentValue, bool, error) {
	if r == nil {
		return telemetry.CurrentValue{}, false, errors.New("commands value reader: nil reader")
	}
	var lastErr error
	for _, src := range r.sources {
		value, ok, err := src.Source.ReadCurrentValue(ctx, pointID)
		if err != nil {
			r.logger.Printf("commands value reader: source=%s point_id=%s err=%v", src.Name, pointID, err)
			lastErr = err
			continue
		}
		if !ok || !value.Usable() {
			continue
		}
		if value.Source == "" {
			value.Source = src.Name
		}
		return value, true, nil
	}
	return telemetry.CurrentValue{}, false, lastErr
}
