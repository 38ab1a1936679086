package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"sflcompanion.app/internal/catalog"
	"sflcompanion.app/internal/farm"
)

const maxBodyBytes = 8 << 20

// BodyCache stores raw response bodies keyed by request URL.
type BodyCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

type Options struct {
	FarmBaseURL  string
	LandBaseURL  string
	PriceURL     string
	UserAgent    string
	RateLimitRPS float64
	RateBurst    int

	HTTPClient *http.Client
	Cache      BodyCache
	Logger     *log.Logger
}

type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	log     *log.Logger

	requests atomic.Uint64
	bodyHits atomic.Uint64
	failures atomic.Uint64
}

func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitRPS > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return &Client{opts: opts, http: opts.HTTPClient, limiter: lim, log: opts.Logger}
}

type ClientStats struct {
	Requests uint64 // HTTP requests sent
	BodyHits uint64 // served from the response cache
	Failures uint64
}

func (c *Client) Stats() ClientStats {
	return ClientStats{
		Requests: c.requests.Load(),
		BodyHits: c.bodyHits.Load(),
		Failures: c.failures.Load(),
	}
}

func joinURL(base string, id uint64) string {
	return strings.TrimRight(base, "/") + "/" + strconv.FormatUint(id, 10)
}

// get returns the body of a successful GET, consulting the response
// cache first. The body is only stored once the caller invokes commit,
// after it decoded cleanly.
func (c *Client) get(ctx context.Context, url string) (body []byte, commit func(), err error) {
	noop := func() {}
	if c.opts.Cache != nil {
		b, ok, err := c.opts.Cache.Get(ctx, url)
		if err != nil {
			c.log.Printf("respcache get %s: %v", url, err)
		} else if ok {
			c.bodyHits.Add(1)
			return b, noop, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.failures.Add(1)
		return nil, noop, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, noop, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, zstd, gzip")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.failures.Add(1)
		return nil, noop, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.failures.Add(1)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, noop, &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err = decodeBody(resp)
	if err != nil {
		c.failures.Add(1)
		return nil, noop, fmt.Errorf("%w: %s: %v", ErrUnavailable, url, err)
	}

	if c.opts.Cache == nil {
		return body, noop, nil
	}
	commit = func() {
		if err := c.opts.Cache.Put(ctx, url, body); err != nil {
			c.log.Printf("respcache put %s: %v", url, err)
		}
	}
	return body, commit, nil
}

var zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBodyBytes))

func decodeBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return raw, nil
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, maxBodyBytes))
	case "br":
		return io.ReadAll(io.LimitReader(brotli.NewReader(bytes.NewReader(raw)), maxBodyBytes))
	case "zstd":
		return zstdDec.DecodeAll(raw, nil)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}

func (c *Client) parseError(url string, body []byte, err error) error {
	c.failures.Add(1)
	c.log.Printf("parse %s: %v; payload: %s", url, err, truncatePayload(body))
	return &ParseError{URL: url, Payload: body, Err: err}
}

type farmDoc struct {
	Farm *struct {
		Username  string                     `json:"username"`
		Balance   decimal.Decimal            `json:"balance"`
		Coins     decimal.Decimal            `json:"coins"`
		Inventory map[string]decimal.Decimal `json:"inventory"`
		Bumpkin   struct {
			Equipped map[string]json.RawMessage `json:"equipped"`
		} `json:"bumpkin"`
		ExpansionConstruction *struct {
			ReadyAt *int64 `json:"readyAt"`
		} `json:"expansionConstruction"`
	} `json:"farm"`
}

// FetchFarm reads the primary farm endpoint. Island and level are left
// unset; they come from FetchLand.
func (c *Client) FetchFarm(ctx context.Context, id uint64) (*farm.Snapshot, error) {
	url := joinURL(c.opts.FarmBaseURL, id)
	body, commit, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var doc farmDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, c.parseError(url, body, err)
	}
	if doc.Farm == nil {
		return nil, c.parseError(url, body, errors.New("missing farm object"))
	}
	commit()
	f := doc.Farm
	snap := &farm.Snapshot{
		FarmID:    id,
		Username:  f.Username,
		Balance:   f.Balance,
		Coins:     f.Coins,
		Inventory: f.Inventory,
		Equipped:  map[string]string{},
	}
	if snap.Inventory == nil {
		snap.Inventory = map[string]decimal.Decimal{}
	}
	for slot, raw := range f.Bumpkin.Equipped {
		var item string
		if json.Unmarshal(raw, &item) == nil {
			snap.Equipped[slot] = item
		}
	}
	if ec := f.ExpansionConstruction; ec != nil && ec.ReadyAt != nil {
		snap.Construction = &farm.Construction{ReadyAt: time.UnixMilli(*ec.ReadyAt)}
	}
	return snap, nil
}

// Land is the farm position reported by the secondary API.
type Land struct {
	Island       string
	Level        int
	BumpkinLevel int
}

// flexInt accepts 12 and "12".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	*f = flexInt(n)
	return nil
}

type landDoc struct {
	Land *struct {
		Type  string   `json:"type"`
		Level *flexInt `json:"level"`
	} `json:"land"`
	Bumpkin *struct {
		Level flexInt `json:"level"`
	} `json:"bumpkin"`
}

func (c *Client) FetchLand(ctx context.Context, id uint64) (Land, error) {
	url := joinURL(c.opts.LandBaseURL, id)
	body, commit, err := c.get(ctx, url)
	if err != nil {
		return Land{}, err
	}
	var doc landDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return Land{}, c.parseError(url, body, err)
	}
	if doc.Land == nil || doc.Bumpkin == nil {
		return Land{}, c.parseError(url, body, errors.New("missing land or bumpkin object"))
	}
	if doc.Land.Type == "" || doc.Land.Level == nil {
		return Land{}, c.parseError(url, body, errors.New("missing land type or level"))
	}
	commit()
	return Land{
		Island:       strings.ToLower(doc.Land.Type),
		Level:        int(*doc.Land.Level),
		BumpkinLevel: int(doc.Bumpkin.Level),
	}, nil
}

type priceDoc struct {
	Data *struct {
		P2P map[string]decimal.Decimal `json:"p2p"`
	} `json:"data"`
}

// FetchPrices reads the market price endpoint. SFL is priced at one.
func (c *Client) FetchPrices(ctx context.Context) (*farm.PriceBook, error) {
	url := c.opts.PriceURL
	body, commit, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var doc priceDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, c.parseError(url, body, err)
	}
	if doc.Data == nil || doc.Data.P2P == nil {
		return nil, c.parseError(url, body, errors.New("missing data.p2p"))
	}
	commit()
	book := &farm.PriceBook{Items: make(map[string]farm.Price, len(doc.Data.P2P)+1)}
	for name, p := range doc.Data.P2P {
		if p.IsNegative() {
			continue
		}
		book.Items[name] = farm.Price{SFL: decimal.NewNullDecimal(p)}
	}
	book.Items[catalog.KeySFL] = farm.Price{SFL: decimal.NewNullDecimal(decimal.NewFromInt(1))}
	return book, nil
}
