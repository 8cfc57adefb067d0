package proof

import (
	"context"
	"strconv"
	"time"

	"github.com/lcrostarosa/proofmode/internal/logging"
)

const (
	// DefaultLocationRetries is how many times a missing fix is retried
	// after the first attempt.
	DefaultLocationRetries = 3
	// DefaultLocationBackoff is the wait before each retry.
	DefaultLocationBackoff = 500 * time.Millisecond
	// DefaultLocationTimeout caps the whole acquisition, provider calls
	// included.
	DefaultLocationTimeout = 1500 * time.Millisecond
)

// MediaInfo describes the media a record is built for.
type MediaInfo struct {
	Path      string
	MimeType  string
	Modified  time.Time
	CreatedAt *time.Time
}

// Options selects the optional parts of a record.
type Options struct {
	IncludeDeviceIDs bool
	IncludeLocation  bool
	IncludeNetwork   bool
	Notes            string
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// NetworkInfo is a snapshot of the device's network state.
type NetworkInfo struct {
	WifiMAC     string
	IPv4        string
	IPv6        string
	DataType    string
	Network     string
	NetworkType string
	CellInfo    string
}

// Device supplies device metadata.
type Device interface {
	Language() string
	Locale() string
	DeviceID() string
	Hardware() string
	Manufacturer() string
	ScreenSize() string
	Network(ctx context.Context) NetworkInfo
}

// Fix is a single location reading.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Altitude  float64
	Bearing   float64
	Speed     float64
	Provider  string
	Time      time.Time
}

// LocationProvider returns the current fix, or nil when none is available.
// Missing permission and missing signal are reported the same way.
type LocationProvider interface {
	CurrentFix(ctx context.Context) (*Fix, error)
}

// Builder assembles proof records from the environment.
type Builder struct {
	clock    Clock
	device   Device
	location LocationProvider
	retries  int
	backoff  time.Duration
	timeout  time.Duration
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the clock.
func WithClock(c Clock) BuilderOption {
	return func(b *Builder) { b.clock = c }
}

// WithLocationRetry overrides the location retry policy.
func WithLocationRetry(retries int, backoff time.Duration) BuilderOption {
	return func(b *Builder) {
		b.retries = retries
		b.backoff = backoff
	}
}

// WithLocationTimeout overrides the cap on location acquisition. A value of
// zero or less removes it.
func WithLocationTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) { b.timeout = d }
}

// NewBuilder creates a builder. A nil location provider never yields a fix.
func NewBuilder(device Device, location LocationProvider, opts ...BuilderOption) *Builder {
	b := &Builder{
		clock:    SystemClock{},
		device:   device,
		location: location,
		retries:  DefaultLocationRetries,
		backoff:  DefaultLocationBackoff,
		timeout:  DefaultLocationTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FormatTime renders t in the record's timestamp layout, in UTC.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Build returns a record for media. Every field in FieldNames is present;
// values that are unavailable or not requested are empty.
func (b *Builder) Build(ctx context.Context, media MediaInfo, fingerprint string, opts Options) *Record {
	r := NewRecord()

	created := media.Modified
	if media.CreatedAt != nil {
		created = *media.CreatedAt
	}

	r.Set(FieldFilePath, media.Path)
	r.Set(FieldFileHash, fingerprint)
	r.Set(FieldFileModified, FormatTime(media.Modified))
	r.Set(FieldFileCreated, FormatTime(created))
	r.Set(FieldProofGenerated, FormatTime(b.clock.Now()))
	r.Set(FieldNotes, opts.Notes)

	if b.device != nil {
		r.Set(FieldLanguage, b.device.Language())
		r.Set(FieldLocale, b.device.Locale())
		r.Set(FieldHardware, b.device.Hardware())
		r.Set(FieldManufacturer, b.device.Manufacturer())
		r.Set(FieldScreenSize, b.device.ScreenSize())

		if opts.IncludeDeviceIDs {
			r.Set(FieldDeviceID, b.device.DeviceID())
		}
		if opts.IncludeNetwork || opts.IncludeDeviceIDs {
			net := b.device.Network(ctx)
			if opts.IncludeDeviceIDs {
				r.Set(FieldWifiMAC, net.WifiMAC)
			}
			if opts.IncludeNetwork {
				r.Set(FieldIPv4, net.IPv4)
				r.Set(FieldIPv6, net.IPv6)
				r.Set(FieldDataType, net.DataType)
				r.Set(FieldNetwork, net.Network)
				r.Set(FieldNetworkType, net.NetworkType)
				r.Set(FieldCellInfo, net.CellInfo)
			}
		}
	}

	if opts.IncludeLocation {
		if fix := b.acquireFix(ctx); fix != nil {
			r.Set(FieldLatitude, formatFloat(fix.Latitude))
			r.Set(FieldLongitude, formatFloat(fix.Longitude))
			r.Set(FieldLocationProvider, fix.Provider)
			r.Set(FieldAccuracy, formatFloat(fix.Accuracy))
			r.Set(FieldAltitude, formatFloat(fix.Altitude))
			r.Set(FieldBearing, formatFloat(fix.Bearing))
			r.Set(FieldSpeed, formatFloat(fix.Speed))
			r.Set(FieldLocationTime, FormatTime(fix.Time))
		}
	}

	return r
}

// acquireFix tries once, then retries with a fixed backoff, giving up
// when the timeout expires even if a provider call is still running.
func (b *Builder) acquireFix(ctx context.Context) *Fix {
	if b.location == nil {
		return nil
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		fix, err := b.currentFix(ctx)
		if err == nil && fix != nil {
			return fix
		}
		if err != nil {
			logging.Debug("Location unavailable", logging.Int("attempt", attempt), logging.Err(err))
		}
		if attempt >= b.retries || ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(b.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// currentFix returns when the provider answers or ctx ends, whichever is
// first. A provider that ignores ctx finishes in the background.
func (b *Builder) currentFix(ctx context.Context) (*Fix, error) {
	type reading struct {
		fix *Fix
		err error
	}
	done := make(chan reading, 1)
	go func() {
		fix, err := b.location.CurrentFix(ctx)
		done <- reading{fix, err}
	}()

	select {
	case r := <-done:
		return r.fix, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
