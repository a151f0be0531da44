package usecase

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/transport"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
)

// fakeTransport serves canned responses and counts fetches per URL. While
// gate is set every fetch blocks until the gate closes.
type fakeTransport struct {
	mu           sync.Mutex
	responses    map[string]*transport.Response
	errs         map[string]error
	calls        map[string]int
	gate         chan struct{}
	ignoreCancel bool
	started      chan string
}

var _ transport.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]*transport.Response),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		started:   make(chan string, 64),
	}
}

func (f *fakeTransport) respond(url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = &transport.Response{Status: status, Body: []byte(body)}
	delete(f.errs, url)
}

func (f *fakeTransport) respondWith(url string, resp *transport.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = resp
}

func (f *fakeTransport) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeTransport) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeTransport) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeTransport) Fetch(ctx context.Context, url string, _ http.Header) (*transport.Response, error) {
	f.mu.Lock()
	f.calls[url]++
	gate, ignoreCancel := f.gate, f.ignoreCancel
	f.mu.Unlock()

	f.started <- url

	if gate != nil {
		if ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if resp, ok := f.responses[url]; ok {
		out := *resp
		return &out, nil
	}
	return &transport.Response{Status: http.StatusNotFound}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Cache: config.Cache{
			Capacity:    64,
			DefaultTTL:  time.Hour,
			TileJSONTTL: time.Hour,
		},
		Transport: config.Transport{Timeout: 5 * time.Second},
		Tiles:     config.Tiles{PixelRatio: 1, InstanceScope: "test"},
		FirstParty: config.FirstParty{
			APIURL:      "https://api.example.com",
			AccessToken: "tok",
		},
	}
}

func newTestUseCase(t *testing.T, ft *fakeTransport) (*SourceUseCase, *cache.LayeredCache) {
	t.Helper()
	c := cache.NewLayeredCache(64, nil, "", logger.NewNoOp())
	uc := NewSourceUseCase(testConfig(), ft, c, logger.NewNoOp())
	t.Cleanup(func() { uc.Close(context.Background()) })
	return uc, c
}

func templateOrigin(templates ...string) domain.Origin {
	return domain.Origin{Kind: domain.OriginExplicitTemplates, Templates: templates}
}

func tileJSONOrigin(url string) domain.Origin {
	return domain.Origin{Kind: domain.OriginTileJSONReference, ConfigurationURL: url}
}

func intPtr(v int) *int {
	return &v
}

// waitStarted blocks until n fetches have reached the transport.
func waitStarted(t *testing.T, ft *fakeTransport, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ft.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for fetch %d to start", i+1)
		}
	}
}
