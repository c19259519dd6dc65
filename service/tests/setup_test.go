package service_test

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spectra-gallery/spectra-playground/cache/memcache"
	cachemocks "github.com/spectra-gallery/spectra-playground/cache/mocks"
	"github.com/spectra-gallery/spectra-playground/config"
	labmocks "github.com/spectra-gallery/spectra-playground/lab/mocks"
	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/mq/chanmq"
	mqmocks "github.com/spectra-gallery/spectra-playground/mq/mocks"
	"github.com/spectra-gallery/spectra-playground/service"
	"github.com/spectra-gallery/spectra-playground/store/memstore"
	storemocks "github.com/spectra-gallery/spectra-playground/store/mocks"
	"github.com/spectra-gallery/spectra-playground/worker"
)

const (
	ownerId    = "11111111-1111-4111-8111-111111111111"
	strangerId = "22222222-2222-4222-8222-222222222222"
	resourceId = "01890a5d-ac96-774b-bcce-b302099a8057"
)

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.LoadFrom(map[string]string{
		"JWT_SECRET":           base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32))),
		"BACKEND":              "memory",
		"PUBLIC_BASE_URL":      "https://play.example.com/",
		"DECRYPT_MAX_ATTEMPTS": "3",
		"KDF_WORKERS":          "2",
	})
	require.NoError(t, err)
	return cfg
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockDeps struct {
	store *storemocks.MockStore
	cache *cachemocks.MockCache
	mq    *mqmocks.MockMQ
	lab   *labmocks.MockLab
	clock *fakeClock

	// published receives the channel of every live-feed publish, sent the
	// body of every queued sweep job.
	published chan string
	sent      chan string
}

// Helper to setup the service with mocks. Live-feed publishes and sweep jobs
// happen asynchronously, so they are optional expectations.
func setupService(t *testing.T) (*service.Service, mockDeps) {
	deps := mockDeps{
		store: new(storemocks.MockStore),
		cache: new(cachemocks.MockCache),
		mq:    new(mqmocks.MockMQ),
		lab:   new(labmocks.MockLab),
		clock: newFakeClock(),

		published: make(chan string, 16),
		sent:      make(chan string, 16),
	}

	svc, err := service.NewService(testConfig(t), deps.store, deps.cache, deps.mq, deps.lab, worker.NewKDFPool(2), logging.NewNop())
	require.NoError(t, err)
	svc.Now = deps.clock.Now

	deps.cache.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe().
		Run(func(args mock.Arguments) { deps.published <- args.String(1) })
	deps.mq.On("Send", mock.Anything, mock.Anything).Return(nil).Maybe().
		Run(func(args mock.Arguments) { deps.sent <- args.String(1) })

	return svc, deps
}

type memoryDeps struct {
	store *memstore.MemoryStore
	cache *memcache.MemoryCache
	queue *chanmq.ChanMessageQueue
	lab   *labmocks.MockLab
	clock *fakeClock
}

// setupMemoryService wires the service to the in-process backends, the way
// a single-node deployment runs.
func setupMemoryService(t *testing.T) (*service.Service, memoryDeps) {
	deps := memoryDeps{
		store: memstore.New(),
		cache: memcache.New(),
		queue: chanmq.New(),
		lab:   new(labmocks.MockLab),
		clock: newFakeClock(),
	}
	deps.cache.Now = deps.clock.Now

	svc, err := service.NewService(testConfig(t), deps.store, deps.cache, deps.queue, deps.lab, worker.NewKDFPool(2), logging.NewNop())
	require.NoError(t, err)
	svc.Now = deps.clock.Now

	return svc, deps
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	call.Run(func(args mock.Arguments) {
		once.Do(func() { close(done) })
	})
	return done
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}
