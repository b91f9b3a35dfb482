// Package rates 提供上游行情轮询，刷新行情仓储
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// tickerEntry 上游 ticker 接口的单个交易对条目
type tickerEntry struct {
	Last       string `json:"last"`
	BaseVolume string `json:"baseVolume"`
}

// Poller 周期性拉取上游 ticker 并写入行情仓储
type Poller struct {
	repo       domain.RateRepository
	httpClient *http.Client
	url        string
	interval   time.Duration
	logger     *slog.Logger
}

// NewPoller 创建行情轮询器
func NewPoller(repo domain.RateRepository, url string, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		repo: repo,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		url:      url,
		interval: interval,
		logger:   logger,
	}
}

// Run 轮询直到 ctx 取消；启动时立即拉取一次
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	rates, err := p.fetch(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "ticker fetch failed", "url", p.url, "error", err)
		return
	}
	if err := p.repo.Upsert(ctx, rates); err != nil {
		p.logger.ErrorContext(ctx, "failed to store ticker rates", "error", err)
		return
	}
	p.logger.DebugContext(ctx, "ticker rates refreshed", "pairs", len(rates))
}

// fetch 拉取并解析 ticker 响应，格式为 { "<pair>": {"last": "...", "baseVolume": "..."} }
func (p *Poller) fetch(ctx context.Context) ([]*domain.ExchangeRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build ticker request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticker returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker response: %w", err)
	}

	var entries map[string]tickerEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode ticker response: %w", err)
	}

	rates := make([]*domain.ExchangeRate, 0, len(entries))
	for pair, entry := range entries {
		last, err := decimal.NewFromString(entry.Last)
		if err != nil {
			p.logger.WarnContext(ctx, "skipping pair with bad last price", "pair", pair, "last", entry.Last)
			continue
		}
		volume, err := decimal.NewFromString(entry.BaseVolume)
		if err != nil {
			volume = decimal.Zero
		}
		rates = append(rates, &domain.ExchangeRate{
			Pair:       pair,
			LastPrice:  last,
			BaseVolume: volume,
		})
	}
	return rates, nil
}
