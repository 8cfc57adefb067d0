package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcrostarosa/proofmode/internal/config"
	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/notarize"
	"github.com/lcrostarosa/proofmode/internal/proof"
	"github.com/lcrostarosa/proofmode/internal/storage"
	"github.com/lcrostarosa/proofmode/internal/testutil"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *testutil.MemoryStore
	signer *testutil.Signer
	notary *notarize.Coordinator
	conn   *testutil.Connectivity
	p      *Processor
}

func testOptions() Options {
	return Options{
		ProofEnabled:    true,
		IncludeLocation: true,
		IncludeNetwork:  true,
		AutoNotarize:    true,
		Passphrase:      "password",
		IdentityDir:     "/identity",
		IdentityName:    "Tester",
		IdentityURI:     "https://example.org/tester",
	}
}

func newFixture(t *testing.T, opts Options, providers ...notarize.Provider) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.NewMemoryStore(),
		signer: testutil.NewSigner(),
		conn:   testutil.NewConnectivity(true),
	}
	f.notary = notarize.NewCoordinator(f.store, notarize.WithTimeout(time.Second))
	for _, provider := range providers {
		f.notary.Register(provider)
	}
	builder := proof.NewBuilder(
		testutil.NewFixedDevice(),
		testutil.NewFixedLocation(testTime),
		proof.WithClock(testutil.NewManualClock(testTime)),
		proof.WithLocationRetry(0, 0),
	)
	f.p = New(Deps{
		Store:        f.store,
		Signer:       f.signer,
		Builder:      builder,
		Notary:       f.notary,
		Connectivity: f.conn,
	}, opts)
	t.Cleanup(f.p.Close)
	return f
}

func TestHelloScenario(t *testing.T) {
	f := newFixture(t, testOptions())
	ctx := context.Background()

	assert.False(t, f.store.ProofExists(ctx, testutil.HelloFingerprint))

	fingerprint := f.p.SubmitBytes(ctx, []byte("hello"), "text/plain", nil)
	require.Equal(t, testutil.HelloFingerprint, fingerprint)
	assert.True(t, f.store.ProofExists(ctx, fingerprint))

	h := fingerprint
	assert.Equal(t, []string{
		h + ".asc",
		h + ".proof.csv",
		h + ".proof.csv.asc",
		h + ".proof.json",
		h + ".proof.json.asc",
		storage.PublicKeyName,
	}, f.store.Identifiers(h))

	writes := f.store.Writes()
	signs := f.signer.SignCount()

	again := f.p.SubmitBytes(ctx, []byte("hello"), "text/plain", nil)
	assert.Equal(t, fingerprint, again)
	assert.Equal(t, writes, f.store.Writes(), "second submission writes nothing")
	assert.Equal(t, signs, f.signer.SignCount())
}

func TestSignaturesCoverStoredBytes(t *testing.T) {
	f := newFixture(t, testOptions())
	ctx := context.Background()
	h := f.p.SubmitBytes(ctx, []byte("hello"), "text/plain", nil)
	require.NotEmpty(t, h)

	for _, id := range []string{storage.ProofFileName(h), storage.ProofJSONFileName(h)} {
		data, ok := f.store.Get(h, id)
		require.True(t, ok, id)
		sig, ok := f.store.Get(h, storage.SignatureName(id))
		require.True(t, ok, id)
		assert.Equal(t, testutil.FakeSignature(data, true), sig, id)
	}

	mediaSig, ok := f.store.Get(h, storage.MediaSignatureName(h))
	require.True(t, ok)
	assert.Equal(t, testutil.FakeSignature([]byte("hello"), true), mediaSig)
}

func TestRecordContents(t *testing.T) {
	f := newFixture(t, testOptions())
	ctx := context.Background()
	media := testutil.NewMediaFixture(t, "photo.jpg", []byte("jpeg bytes"))
	created := testTime.Add(-time.Hour)

	h, err := f.p.Process(ctx, Request{Path: media.Path, MimeType: "image/jpeg", CreatedAt: &created, Notes: "at the march"})
	require.NoError(t, err)
	assert.Equal(t, media.Fingerprint, h)

	csvData, _ := f.store.Get(h, storage.ProofFileName(h))
	record, err := proof.ParseCSV(string(csvData))
	require.NoError(t, err)
	assert.Equal(t, proof.FieldNames, record.Names())
	assert.Equal(t, h, record.Value(proof.FieldFileHash))
	assert.Equal(t, media.Path, record.Value(proof.FieldFilePath))
	assert.Equal(t, proof.FormatTime(created), record.Value(proof.FieldFileCreated))
	assert.Equal(t, proof.FormatTime(testTime), record.Value(proof.FieldProofGenerated))
	assert.Equal(t, "at the march", record.Value(proof.FieldNotes))
	assert.Equal(t, "52.52", record.Value(proof.FieldLatitude))
	assert.Equal(t, "", record.Value(proof.FieldDeviceID), "device ids are opt-in")

	jsonData, _ := f.store.Get(h, storage.ProofJSONFileName(h))
	fromJSON, err := proof.ParseJSON(jsonData)
	require.NoError(t, err)
	assert.Equal(t, record.Fields(), fromJSON.Fields())
}

func TestMissingMedia(t *testing.T) {
	f := newFixture(t, testOptions())

	h, err := f.p.Process(context.Background(), Request{Path: filepath.Join(t.TempDir(), "gone.jpg")})
	assert.Empty(t, h)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	f.p.Submit(filepath.Join(t.TempDir(), "gone.mp4"), "video/mp4", true, nil)
	<-f.p.Events() // from Process
	ev := <-f.p.Events()
	assert.Equal(t, "gone.mp4", filepath.Base(ev.Ref))
	assert.True(t, errors.Is(ev.Err, apperrors.ErrNotFound))
	assert.Empty(t, ev.Fingerprint)
	assert.Equal(t, 0, f.store.Writes())
}

func TestDisabled(t *testing.T) {
	opts := testOptions()
	opts.ProofEnabled = false
	f := newFixture(t, opts)

	assert.Empty(t, f.p.SubmitBytes(context.Background(), []byte("hello"), "text/plain", nil))
	assert.Equal(t, 0, f.store.Writes())
	assert.Equal(t, 0, f.signer.SignCount())
}

func TestMandatoryFailures(t *testing.T) {
	tests := []struct {
		name    string
		inject  func(f *fixture)
		recover func(f *fixture)
		wantErr error
		// recordStored is set when the failure comes after the CSV record
		// was written.
		recordStored bool
	}{
		{
			name:    "identity",
			inject:  func(f *fixture) { f.signer.EnsureErr = apperrors.ErrSigning },
			recover: func(f *fixture) { f.signer.EnsureErr = nil },
			wantErr: apperrors.ErrSigning,
		},
		{
			name:    "signing",
			inject:  func(f *fixture) { f.signer.SignErr = apperrors.ErrSigning },
			recover: func(f *fixture) { f.signer.SignErr = nil },
			wantErr: apperrors.ErrSigning,
		},
		{
			name:    "record write",
			inject:  func(f *fixture) { f.store.FailOn(".proof.csv") },
			recover: func(f *fixture) { f.store.ClearFailures() },
			wantErr: apperrors.ErrIO,
		},
		{
			name:    "signature write",
			inject:  func(f *fixture) { f.store.FailOn(".json.asc") },
			recover: func(f *fixture) { f.store.ClearFailures() },
			wantErr: apperrors.ErrIO,
		},
		{
			name:         "record signature write",
			inject:       func(f *fixture) { f.store.FailOn(".proof.csv.asc") },
			recover:      func(f *fixture) { f.store.ClearFailures() },
			wantErr:      apperrors.ErrIO,
			recordStored: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a := testutil.NewScriptedNotary("a", ".a", "r")
			f := newFixture(t, testOptions(), a)
			tt.inject(f)

			h, err := f.p.Process(ctx, Request{Data: []byte("hello"), MimeType: "text/plain"})
			assert.Empty(t, h)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.recordStored, f.store.ProofExists(ctx, testutil.HelloFingerprint))
			assert.Equal(t, "", f.p.SubmitBytes(ctx, []byte("hello"), "text/plain", nil), "a retry with the fault still present fails too")

			tt.recover(f)
			h = f.p.SubmitBytes(ctx, []byte("hello"), "text/plain", nil)
			require.Equal(t, testutil.HelloFingerprint, h)
			assert.Equal(t, []string{
				h + ".asc",
				h + ".proof.csv",
				h + ".proof.csv.asc",
				h + ".proof.json",
				h + ".proof.json.asc",
				storage.PublicKeyName,
			}, f.store.Identifiers(h))

			csvData, _ := f.store.Get(h, storage.ProofFileName(h))
			csvSig, _ := f.store.Get(h, storage.SignatureName(storage.ProofFileName(h)))
			assert.Equal(t, testutil.FakeSignature(csvData, true), csvSig)

			f.p.Close()
			assert.Len(t, a.Calls(), 1, "notarized once the bundle is complete")
		})
	}
}

func TestNotarizationIsolation(t *testing.T) {
	tests := []struct {
		name     string
		submit   func(t *testing.T, p *Processor) string
		wantMime string
	}{
		{
			name: "bytes",
			submit: func(t *testing.T, p *Processor) string {
				return p.SubmitBytes(context.Background(), []byte("hello"), "text/plain", nil)
			},
			wantMime: "text/plain",
		},
		{
			name: "file",
			submit: func(t *testing.T, p *Processor) string {
				media := testutil.NewMediaFixture(t, "photo.jpg", []byte("hello"))
				h, err := p.Process(context.Background(), Request{Path: media.Path, MimeType: "image/jpeg"})
				require.NoError(t, err)
				return h
			},
			wantMime: "image/jpeg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testutil.NewScriptedNotary("a", ".a", "receipt-a")
			b := testutil.NewFailingNotary("b", ".b", errors.New("calendar down"))
			c := &testutil.ScriptedNotary{ProviderName: "c", Ext: ".c", Panic: true}

			var mu sync.Mutex
			var outcomes []notarize.Outcome
			f := newFixture(t, testOptions(), a, b, c)
			f.p.deps.Callbacks = &Callbacks{OnNotarized: func(_ string, o []notarize.Outcome) {
				mu.Lock()
				outcomes = o
				mu.Unlock()
			}}

			h := tt.submit(t, f.p)
			require.Equal(t, testutil.HelloFingerprint, h)
			f.p.Close()

			receipt, ok := f.store.Get(h, h+".a")
			require.True(t, ok)
			assert.Equal(t, "receipt-a", string(receipt))
			_, ok = f.store.Get(h, h+".b")
			assert.False(t, ok)
			_, ok = f.store.Get(h, h+".c")
			assert.False(t, ok)

			require.Len(t, a.Calls(), 1)
			assert.Equal(t, []byte("hello"), a.Calls()[0].Content)
			assert.Equal(t, tt.wantMime, a.Calls()[0].MimeType)
			assert.Equal(t, 1, f.conn.Checks())

			mu.Lock()
			defer mu.Unlock()
			assert.Len(t, outcomes, 3)
		})
	}
}

func TestNotarizationGating(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		a := testutil.NewScriptedNotary("a", ".a", "r")
		f := newFixture(t, testOptions(), a)
		f.conn = testutil.NewConnectivity(false)
		f.p.conn = f.conn

		require.NotEmpty(t, f.p.SubmitBytes(context.Background(), []byte("hello"), "", nil))
		f.p.Close()
		assert.Empty(t, a.Calls())
		assert.Equal(t, 1, f.conn.Checks())
	})

	t.Run("auto notarize off", func(t *testing.T) {
		opts := testOptions()
		opts.AutoNotarize = false
		a := testutil.NewScriptedNotary("a", ".a", "r")
		f := newFixture(t, opts, a)

		require.NotEmpty(t, f.p.SubmitBytes(context.Background(), []byte("hello"), "", nil))
		f.p.Close()
		assert.Empty(t, a.Calls())
		assert.Equal(t, 0, f.conn.Checks())
	})

	t.Run("duplicate is not notarized again", func(t *testing.T) {
		a := testutil.NewScriptedNotary("a", ".a", "r")
		f := newFixture(t, testOptions(), a)

		f.p.SubmitBytes(context.Background(), []byte("hello"), "", nil)
		f.p.SubmitBytes(context.Background(), []byte("hello"), "", nil)
		f.p.Close()
		assert.Len(t, a.Calls(), 1)
	})
}

func TestConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, testOptions())

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.p.SubmitBytes(context.Background(), []byte("hello"), "text/plain", nil)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, testutil.HelloFingerprint, r)
	}
	assert.Equal(t, 3, f.signer.SignCount(), "media, json and csv signed once")
}

func TestCloseDrainsQueue(t *testing.T) {
	f := newFixture(t, testOptions())

	seed := testutil.Seed(t)
	var media []*testutil.MediaFixture
	for i := range uint64(5) {
		m := testutil.NewRandomMedia(t, "clip.mp4", 256, seed+i)
		media = append(media, m)
		f.p.Submit(m.Path, "video/mp4", true, nil)
	}
	f.p.Close()

	for _, m := range media {
		assert.True(t, f.store.ProofExists(context.Background(), m.Fingerprint))
	}

	_, err := f.p.Process(context.Background(), Request{Data: []byte("late")})
	assert.ErrorIs(t, err, ErrClosed)
	f.p.Submit(media[0].Path, "video/mp4", true, nil)
	f.p.Close()
}

func TestEnqueueDoesNotWaitForRoom(t *testing.T) {
	opts := testOptions()
	opts.QueueSize = 1
	f := newFixture(t, opts)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.p.deps.Callbacks = &Callbacks{OnProofGenerated: func(Event) {
		entered <- struct{}{}
		<-release
	}}
	defer close(release)

	m := testutil.NewMediaFixture(t, "a.png", []byte("png"))
	require.NoError(t, f.p.Enqueue(Request{Path: m.Path}))
	<-entered // the worker is busy with the first request
	require.NoError(t, f.p.Enqueue(Request{Path: m.Path}))

	done := make(chan error, 1)
	go func() { done <- f.p.Enqueue(Request{Path: m.Path}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue waited on a full queue")
	}

	f.p.Submit(m.Path, "image/png", false, nil)
}

func TestEventsAndCallbacks(t *testing.T) {
	var skipped []Event
	f := newFixture(t, testOptions())
	f.p.deps.Callbacks = &Callbacks{OnProofSkipped: func(ev Event) { skipped = append(skipped, ev) }}

	m := testutil.NewMediaFixture(t, "a.png", []byte("png"))
	f.p.Submit(m.Path, "image/png", false, nil)
	ev := <-f.p.Events()
	assert.Equal(t, m.Path, ev.Ref)
	assert.Equal(t, m.Fingerprint, ev.Fingerprint)
	assert.False(t, ev.Skipped)
	assert.NoError(t, ev.Err)

	f.p.Submit(m.Path, "image/png", false, nil)
	ev = <-f.p.Events()
	assert.True(t, ev.Skipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, m.Fingerprint, skipped[0].Fingerprint)
}

func TestMirroredStore(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	secondary := testutil.NewMemoryStore()
	composite := storage.NewComposite(local, secondary)

	builder := proof.NewBuilder(testutil.NewFixedDevice(), nil)
	p := New(Deps{Store: composite, Signer: testutil.NewSigner(), Builder: builder}, testOptions())

	h := p.SubmitBytes(context.Background(), []byte("hello"), "text/plain", nil)
	require.Equal(t, testutil.HelloFingerprint, h)
	p.Close()

	ctx := context.Background()
	assert.True(t, secondary.ProofExists(ctx, h))
	csvName := storage.ProofFileName(h)
	assert.True(t, local.ProofIdentifierExists(ctx, h, storage.URIName(csvName)))
	uri, err := storage.ReadAll(ctx, local, h, storage.URIName(csvName))
	require.NoError(t, err)
	assert.Equal(t, secondary.Locator(h, csvName), string(uri))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.IncludeDeviceIDs = true
	cfg.Signing.IdentityURI = "https://example.org/me"

	opts := OptionsFromConfig(cfg)
	assert.True(t, opts.ProofEnabled)
	assert.True(t, opts.IncludeDeviceIDs)
	assert.Equal(t, cfg.IdentityDir(), opts.IdentityDir)
	assert.Equal(t, config.DefaultPassphrase, opts.Passphrase)
	assert.Equal(t, "https://example.org/me", opts.IdentityURI)
	assert.Equal(t, DefaultQueueSize, opts.QueueSize)
}
