package ephemeris

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Resolver finds the state vector nearest in time to a query. It holds no
// reference to the samples it scans and is safe for concurrent use.
type Resolver struct {
	queryLayout  string
	sampleLayout string
	epoch        func(StateVector) (string, bool)
	clock        func() time.Time
	logger       *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithQueryLayout sets the layout explicit query timestamps are parsed with.
func WithQueryLayout(layout string) Option {
	return func(r *Resolver) { r.queryLayout = layout }
}

// WithSampleLayout sets the layout sample epochs are parsed with.
func WithSampleLayout(layout string) Option {
	return func(r *Resolver) { r.sampleLayout = layout }
}

// WithEpochField sets the accessor that reads a sample's timestamp.
func WithEpochField(f func(StateVector) (string, bool)) Option {
	return func(r *Resolver) { r.epoch = f }
}

// WithClock sets the source of the current instant for Now queries.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.clock = now }
}

// NewResolver returns a Resolver using EpochLayout for queries and samples.
func NewResolver(logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		queryLayout:  EpochLayout,
		sampleLayout: EpochLayout,
		epoch:        EpochField,
		clock:        time.Now,
		logger:       logger.With("component", "resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SampleOutcome records why a sample was passed over during a scan.
type SampleOutcome struct {
	Index int
	Err   error
}

// Result is the outcome of a scan.
type Result struct {
	State    StateVector
	Index    int           // position of State in the input; -1 when not Found
	At       time.Time     // the resolved query instant
	Epoch    time.Time     // State's parsed epoch
	Distance time.Duration // |State epoch - At|
	Found    bool
	Skipped  []SampleOutcome
}

// Nearest returns the sample whose epoch is closest to query. query is an
// explicit timestamp or Now. ok is false when samples is empty or no sample
// has a usable epoch; that is not an error.
func (r *Resolver) Nearest(query string, samples Ephemeris) (sv StateVector, ok bool, err error) {
	at, err := r.ParseQuery(query)
	if err != nil {
		return StateVector{}, false, err
	}
	res := r.scan(at, samples, nil)
	return res.State, res.Found, nil
}

// Scan is Nearest with the full result, including the samples skipped.
func (r *Resolver) Scan(query string, samples Ephemeris) (Result, error) {
	at, err := r.ParseQuery(query)
	if err != nil {
		return Result{Index: -1}, err
	}
	var skipped []SampleOutcome
	res := r.scan(at, samples, func(o SampleOutcome) {
		skipped = append(skipped, o)
	})
	res.Skipped = skipped
	return res, nil
}

// ParseQuery resolves a query string to an instant. The clock is read once.
func (r *Resolver) ParseQuery(query string) (time.Time, error) {
	if strings.EqualFold(strings.TrimSpace(query), Now) {
		return r.clock().UTC(), nil
	}
	at, err := ParseEpoch(query, r.queryLayout)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrMalformedQuery, query, err)
	}
	return at, nil
}

// scan is a single pass over samples keeping the first sample with the
// strictly smallest distance to at.
func (r *Resolver) scan(at time.Time, samples Ephemeris, skip func(SampleOutcome)) Result {
	best := Result{Index: -1, At: at}

	for i, sv := range samples {
		raw, present := r.epoch(sv)
		if !present {
			r.logger.Debug("sample missing epoch, skipping", "index", i)
			if skip != nil {
				skip(SampleOutcome{Index: i, Err: ErrMissingEpoch})
			}
			continue
		}

		t, err := ParseEpoch(raw, r.sampleLayout)
		if err != nil {
			r.logger.Warn("sample epoch unparseable, skipping", "index", i, "epoch", raw, "error", err)
			if skip != nil {
				skip(SampleOutcome{Index: i, Err: fmt.Errorf("%w %q: %v", ErrMalformedSample, raw, err)})
			}
			continue
		}

		d := t.Sub(at).Abs()
		if !best.Found || d < best.Distance {
			best.State = sv
			best.Index = i
			best.Epoch = t
			best.Distance = d
			best.Found = true
		}
	}

	return best
}
