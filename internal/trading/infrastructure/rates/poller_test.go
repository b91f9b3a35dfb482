package rates

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

type captureRepo struct {
	mu    sync.Mutex
	rates []*domain.ExchangeRate
}

func (r *captureRepo) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rates, nil
}

func (r *captureRepo) Upsert(ctx context.Context, rates []*domain.ExchangeRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates = rates
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchParsesTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"USDT_BTC": {"last": "43250.12", "baseVolume": "1200.5"},
			"USDT_ETH": {"last": "oops", "baseVolume": "900"},
			"BTC_ETH":  {"last": "0.055", "baseVolume": "bad"}
		}`))
	}))
	defer srv.Close()

	p := NewPoller(&captureRepo{}, srv.URL, time.Minute, discardLogger())
	rates, err := p.fetch(context.Background())
	require.NoError(t, err)

	// last 解析失败的交易对整条跳过，volume 解析失败则置零
	require.Len(t, rates, 2)
	byPair := make(map[string]*domain.ExchangeRate)
	for _, r := range rates {
		byPair[r.Pair] = r
	}

	require.Contains(t, byPair, "USDT_BTC")
	assert.True(t, byPair["USDT_BTC"].LastPrice.Equal(mustDec(t, "43250.12")))
	assert.True(t, byPair["USDT_BTC"].BaseVolume.Equal(mustDec(t, "1200.5")))

	require.Contains(t, byPair, "BTC_ETH")
	assert.True(t, byPair["BTC_ETH"].BaseVolume.IsZero())
	assert.NotContains(t, byPair, "USDT_ETH")
}

func TestFetchRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPoller(&captureRepo{}, srv.URL, time.Minute, discardLogger())
	_, err := p.fetch(context.Background())
	assert.Error(t, err)
}

func TestRunRefreshesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"USDT_BTC": {"last": "50", "baseVolume": "1"}}`))
	}))
	defer srv.Close()

	repo := &captureRepo{}
	p := NewPoller(repo, srv.URL, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.After(time.Second)
	for {
		rates, _ := repo.Latest(context.Background())
		if len(rates) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poller did not refresh on start")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
