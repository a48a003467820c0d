// Package fx resolves currency conversion rates for cross-currency price
// filtering. Rates come from a TOML file, hot-reload on change, and are
// mirrored into the store for operational visibility.
package fx

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

const mirrorKey = "fx:rates"

// ratesFile is the on-disk shape:
//
//	base = "USD"
//	[rates]
//	YER = 250.0
//	SAR = 3.75
type ratesFile struct {
	Base  string             `toml:"base"`
	Rates map[string]float64 `toml:"rates"`
}

// Provider serves conversion factors between currency codes. All factors are
// expressed against the base currency; cross rates divide through it.
type Provider struct {
	path string
	rdb  *redis.Client

	mu    sync.RWMutex
	base  string
	rates map[string]float64
}

var _ domain.RateProvider = (*Provider)(nil)

// New loads the rates file at path. A missing file is not fatal: the
// provider starts empty and conversions report unavailable until a reload
// succeeds. rdb may be nil to skip mirroring.
func New(path string, rdb *redis.Client) (*Provider, error) {
	p := &Provider{path: path, rdb: rdb, rates: map[string]float64{}}
	if path == "" {
		return p, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("fx rates file missing, conversions disabled")
		return p, nil
	}
	if err := p.Reload(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStatic builds a provider from an in-memory table.
func NewStatic(base string, rates map[string]float64) *Provider {
	up := make(map[string]float64, len(rates))
	for c, v := range rates {
		up[strings.ToUpper(c)] = v
	}
	return &Provider{base: strings.ToUpper(base), rates: up}
}

// Rate returns the multiplier turning an amount in from-currency into
// to-currency. Unknown currencies yield (1, false) so callers keep the
// original amount instead of failing the request.
func (p *Provider) Rate(_ context.Context, from, to string) (float64, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == "" || to == "" || from == to {
		return 1, from == to && from != ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	rf, okf := p.factorLocked(from)
	rt, okt := p.factorLocked(to)
	if !okf || !okt || rf == 0 {
		return 1, false
	}
	return rt / rf, true
}

func (p *Provider) factorLocked(code string) (float64, bool) {
	if code == p.base && p.base != "" {
		return 1, true
	}
	v, ok := p.rates[code]
	return v, ok && v > 0
}

// Reload re-reads the file and swaps the table. On parse failure the
// previous table stays in effect.
func (p *Provider) Reload(ctx context.Context) error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	var rf ratesFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return err
	}
	up := make(map[string]float64, len(rf.Rates))
	for c, v := range rf.Rates {
		up[strings.ToUpper(c)] = v
	}
	p.mu.Lock()
	p.base = strings.ToUpper(rf.Base)
	p.rates = up
	p.mu.Unlock()
	p.mirror(ctx)
	return nil
}

// mirror publishes the current table into the store, best effort.
func (p *Provider) mirror(ctx context.Context) {
	if p.rdb == nil {
		return
	}
	p.mu.RLock()
	fields := make(map[string]string, len(p.rates)+1)
	fields["base"] = p.base
	for c, v := range p.rates {
		fields[c] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	p.mu.RUnlock()
	if err := p.rdb.HSet(ctx, mirrorKey, fields).Err(); err != nil {
		log.Warn().Err(err).Msg("fx rates mirror failed")
	}
}

// Watch reloads the table whenever the file is rewritten. The watcher stops
// when ctx is canceled.
func (p *Provider) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(p.path); err != nil {
		w.Close()
		return err
	}
	go func() {
		defer func() {
			if err := w.Close(); err != nil {
				log.Warn().Err(err).Msg("fx rates watcher close failed")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					// let the writer finish before reading
					time.Sleep(100 * time.Millisecond)
					if err := p.Reload(ctx); err != nil {
						log.Error().Err(err).Str("path", p.path).Msg("fx rates reload failed, keeping previous table")
						continue
					}
					log.Info().Str("path", p.path).Msg("fx rates reloaded")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("fx rates watcher error")
			}
		}
	}()
	return nil
}
