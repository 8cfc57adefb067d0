package proof

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/proofmode/internal/config"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeDevice struct{}

func (fakeDevice) Language() string     { return "en" }
func (fakeDevice) Locale() string       { return "en_US" }
func (fakeDevice) DeviceID() string     { return "device-1" }
func (fakeDevice) Hardware() string     { return "linux/arm64" }
func (fakeDevice) Manufacturer() string { return "Guardian" }
func (fakeDevice) ScreenSize() string   { return "6.1" }
func (fakeDevice) Network(context.Context) NetworkInfo {
	return NetworkInfo{
		WifiMAC:     "02:00:00:00:00:01",
		IPv4:        "10.0.0.2",
		IPv6:        "fe80::1",
		DataType:    "LTE",
		Network:     "wlan0",
		NetworkType: "wifi",
		CellInfo:    "cell-1",
	}
}

// scriptedLocation fails until the given attempt number.
type scriptedLocation struct {
	succeedOn int32
	calls     atomic.Int32
}

func (s *scriptedLocation) CurrentFix(context.Context) (*Fix, error) {
	n := s.calls.Add(1)
	if s.succeedOn > 0 && n >= s.succeedOn {
		return &Fix{Latitude: 40.7128, Longitude: -74.006, Accuracy: 5, Provider: "gps",
			Time: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}, nil
	}
	return nil, errors.New("no signal")
}

// hangingLocation answers only once release is closed, whatever its
// context says.
type hangingLocation struct {
	release chan struct{}
}

func (h hangingLocation) CurrentFix(context.Context) (*Fix, error) {
	<-h.release
	return nil, errors.New("released")
}

var testNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("EST", -5*3600))

func TestBuildFieldCompleteness(t *testing.T) {
	modified := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
	media := MediaInfo{Path: "/media/a.jpg", MimeType: "image/jpeg", Modified: modified}
	loc := &scriptedLocation{succeedOn: 1}
	b := NewBuilder(fakeDevice{}, loc, WithClock(fixedClock{testNow}), WithLocationRetry(3, time.Millisecond))

	for mask := 0; mask < 8; mask++ {
		opts := Options{
			IncludeDeviceIDs: mask&1 != 0,
			IncludeLocation:  mask&2 != 0,
			IncludeNetwork:   mask&4 != 0,
		}
		t.Run(fmt.Sprintf("%+v", opts), func(t *testing.T) {
			r := b.Build(context.Background(), media, "abc", opts)
			assert.Equal(t, FieldNames, r.Names())

			assert.Equal(t, "abc", r.Value(FieldFileHash))
			assert.Equal(t, "2024-04-30T08:00:00Z", r.Value(FieldFileModified))
			assert.Equal(t, "2024-04-30T08:00:00Z", r.Value(FieldFileCreated))
			assert.Equal(t, "2024-05-01T17:30:00Z", r.Value(FieldProofGenerated))
			assert.Equal(t, "en_US", r.Value(FieldLocale))

			assert.Equal(t, opts.IncludeDeviceIDs, r.Value(FieldDeviceID) != "")
			assert.Equal(t, opts.IncludeDeviceIDs, r.Value(FieldWifiMAC) != "")
			assert.Equal(t, opts.IncludeNetwork, r.Value(FieldIPv4) != "")
			assert.Equal(t, opts.IncludeNetwork, r.Value(FieldCellInfo) != "")
			assert.Equal(t, opts.IncludeLocation, r.Value(FieldLatitude) != "")
		})
	}
}

func TestBuildCreatedAtAndNotes(t *testing.T) {
	created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	b := NewBuilder(nil, nil, WithClock(fixedClock{testNow}))

	r := b.Build(context.Background(), MediaInfo{Path: "p", CreatedAt: &created}, "h", Options{Notes: "n", IncludeLocation: true})
	assert.Equal(t, "2023-01-02T03:04:05Z", r.Value(FieldFileCreated))
	assert.Equal(t, "", r.Value(FieldFileModified))
	assert.Equal(t, "n", r.Value(FieldNotes))
	assert.Equal(t, "", r.Value(FieldLanguage), "no device leaves device fields empty")
	assert.Equal(t, FieldNames, r.Names())
}

func TestBuildLocationValues(t *testing.T) {
	b := NewBuilder(nil, &scriptedLocation{succeedOn: 1}, WithClock(fixedClock{testNow}))
	r := b.Build(context.Background(), MediaInfo{}, "h", Options{IncludeLocation: true})

	assert.Equal(t, "40.7128", r.Value(FieldLatitude))
	assert.Equal(t, "-74.006", r.Value(FieldLongitude))
	assert.Equal(t, "gps", r.Value(FieldLocationProvider))
	assert.Equal(t, "5", r.Value(FieldAccuracy))
	assert.Equal(t, "0", r.Value(FieldBearing))
	assert.Equal(t, "2024-05-01T12:00:00Z", r.Value(FieldLocationTime))
}

func TestLocationRetryPolicy(t *testing.T) {
	t.Run("succeeds on a retry", func(t *testing.T) {
		loc := &scriptedLocation{succeedOn: 3}
		b := NewBuilder(nil, loc, WithLocationRetry(3, time.Millisecond))
		r := b.Build(context.Background(), MediaInfo{}, "h", Options{IncludeLocation: true})
		assert.Equal(t, int32(3), loc.calls.Load())
		assert.NotEmpty(t, r.Value(FieldLatitude))
	})

	t.Run("gives up after three retries", func(t *testing.T) {
		loc := &scriptedLocation{}
		b := NewBuilder(nil, loc, WithLocationRetry(3, 20*time.Millisecond))

		start := time.Now()
		r := b.Build(context.Background(), MediaInfo{}, "h", Options{IncludeLocation: true})
		elapsed := time.Since(start)

		assert.Equal(t, int32(4), loc.calls.Load())
		assert.Empty(t, r.Value(FieldLatitude))
		assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	})

	t.Run("default policy stays within bound", func(t *testing.T) {
		if testing.Short() {
			t.Skip("waits for the full backoff")
		}
		loc := &scriptedLocation{}
		b := NewBuilder(nil, loc)

		start := time.Now()
		b.Build(context.Background(), MediaInfo{}, "h", Options{IncludeLocation: true})
		assert.Less(t, time.Since(start), 1700*time.Millisecond)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		loc := &scriptedLocation{}
		b := NewBuilder(nil, loc, WithLocationRetry(3, time.Hour), WithLocationTimeout(0))
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		start := time.Now()
		r := b.Build(ctx, MediaInfo{}, "h", Options{IncludeLocation: true})
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, int32(1), loc.calls.Load())
		assert.Empty(t, r.Value(FieldLatitude))
	})

	t.Run("hanging provider is cut off", func(t *testing.T) {
		loc := hangingLocation{release: make(chan struct{})}
		defer close(loc.release)
		b := NewBuilder(nil, loc, WithLocationTimeout(50*time.Millisecond))

		start := time.Now()
		r := b.Build(context.Background(), MediaInfo{}, "h", Options{IncludeLocation: true})
		assert.Less(t, time.Since(start), time.Second)
		assert.Empty(t, r.Value(FieldLatitude))
		assert.NotEmpty(t, r.Value(FieldFileHash), "the rest of the record is still built")
	})

	t.Run("default timeout bounds a hanging provider", func(t *testing.T) {
		if testing.Short() {
			t.Skip("waits for the full timeout")
		}
		loc := hangingLocation{release: make(chan struct{})}
		defer close(loc.release)
		b := NewBuilder(nil, loc)

		start := time.Now()
		b.Build(context.Background(), MediaInfo{}, "h", Options{IncludeLocation: true})
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, DefaultLocationTimeout)
		assert.Less(t, elapsed, 1700*time.Millisecond)
	})

	t.Run("location not requested skips provider", func(t *testing.T) {
		loc := &scriptedLocation{succeedOn: 1}
		b := NewBuilder(nil, loc)
		b.Build(context.Background(), MediaInfo{}, "h", Options{})
		assert.Equal(t, int32(0), loc.calls.Load())
	})
}

func TestStaticLocation(t *testing.T) {
	clock := fixedClock{testNow}

	fix, err := NewStaticLocation(nil, clock).CurrentFix(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fix)

	fix, err = NewStaticLocation(&config.LocationConfig{Latitude: 1}, clock).CurrentFix(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fix, "disabled config has no fix")

	fix, err = NewStaticLocation(&config.LocationConfig{Enabled: true, Latitude: 52.5, Longitude: 13.4}, clock).CurrentFix(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fix)
	assert.Equal(t, "static", fix.Provider)
	assert.Equal(t, 52.5, fix.Latitude)
	assert.Equal(t, testNow, fix.Time)
}

func TestHostDevice(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "de_DE.UTF-8")

	d := NewHostDevice(dir)
	assert.Equal(t, "de_DE", d.Locale())
	assert.Equal(t, "de", d.Language())
	assert.Contains(t, d.Hardware(), "/")

	id := d.DeviceID()
	assert.Len(t, id, 36)
	assert.Equal(t, id, d.DeviceID())

	data, err := os.ReadFile(filepath.Join(dir, deviceIDFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), id)

	assert.Equal(t, id, NewHostDevice(dir).DeviceID(), "id survives restarts")

	_ = d.Network(context.Background())
}

func TestInterfaceType(t *testing.T) {
	tests := map[string]string{
		"wlan0":  "wifi",
		"wlp2s0": "wifi",
		"wwan0":  "cellular",
		"eth0":   "ethernet",
		"enp3s0": "ethernet",
		"tun0":   "other",
	}
	for name, want := range tests {
		assert.Equal(t, want, interfaceType(name), name)
	}
}
