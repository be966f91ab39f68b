package exchange

import "context"

// RawRate is one symbol's funding rate exactly as a venue reported it. Rate
// stays a string until ingestion validates and coerces it.
type RawRate struct {
	Symbol string
	Rate   string
}

// RateFetcher is implemented by each venue client. FetchCurrentRates returns
// one RawRate per tradable symbol; transient per-symbol problems are handled
// inside the client, an error means the venue was unusable this run.
type RateFetcher interface {
	FetchCurrentRates(ctx context.Context) ([]RawRate, error)
	Name() string
}
