package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"ticklake/internal/domain"
)

// Compile-time interface check.
var _ Resolver = (*AssetResolver)(nil)

type assetLister interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

// AssetResolver resolves tickers against the broker's active US equity
// catalogue. The catalogue is fetched once and refreshed after ttl.
type AssetResolver struct {
	client assetLister
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger

	mu        sync.Mutex
	bySymbol  map[string][]domain.Security
	fetchedAt time.Time
}

// NewAssetResolver creates a resolver using the trading API at baseURL.
func NewAssetResolver(apiKey, apiSecret, baseURL string, ttl time.Duration) *AssetResolver {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
	return &AssetResolver{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		log:    slog.Default().With("component", "resolver"),
	}
}

// Resolve returns every tradable security whose symbol matches ticker,
// ignoring case. Callers treat anything but exactly one match as ambiguous.
func (r *AssetResolver) Resolve(ctx context.Context, ticker string) ([]domain.Security, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := r.index()
	if err != nil {
		return nil, err
	}
	return idx[strings.ToUpper(strings.TrimSpace(ticker))], nil
}

func (r *AssetResolver) index() (map[string][]domain.Security, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bySymbol != nil && r.now().Sub(r.fetchedAt) < r.ttl {
		return r.bySymbol, nil
	}

	assets, err := r.client.GetAssets(alpaca.GetAssetsRequest{
		Status:     "active",
		AssetClass: "us_equity",
	})
	if err != nil {
		if r.bySymbol != nil {
			r.log.Warn("asset refresh failed, serving stale catalogue", "err", err)
			return r.bySymbol, nil
		}
		return nil, domain.NewUpstreamError("GetAssets", err)
	}

	r.bySymbol = buildIndex(assets)
	r.fetchedAt = r.now()
	r.log.Info("asset catalogue loaded", "assets", len(assets), "symbols", len(r.bySymbol))
	return r.bySymbol, nil
}

func buildIndex(assets []alpaca.Asset) map[string][]domain.Security {
	idx := make(map[string][]domain.Security, len(assets))
	for _, a := range assets {
		if !a.Tradable {
			continue
		}
		sym := strings.ToUpper(a.Symbol)
		idx[sym] = append(idx[sym], domain.Security{
			Symbol:   sym,
			AssetID:  a.ID,
			Name:     a.Name,
			Exchange: a.Exchange,
			Class:    string(a.Class),
		})
	}
	return idx
}

// ResolveOne resolves ticker and requires exactly one match.
func ResolveOne(ctx context.Context, r Resolver, ticker string) (domain.Security, error) {
	secs, err := r.Resolve(ctx, ticker)
	if err != nil {
		return domain.Security{}, err
	}
	if len(secs) != 1 {
		return domain.Security{}, fmt.Errorf("%w: %s matched %d securities", domain.ErrAmbiguousSecurity, ticker, len(secs))
	}
	return secs[0], nil
}
