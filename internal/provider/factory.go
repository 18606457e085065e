package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/addresolve/internal/config"
	rerrors "github.com/Aman-CERP/addresolve/internal/errors"
)

// Set is the configured provider stack plus the resources it owns.
type Set struct {
	Registry   *Registry
	Store      *Store
	Dictionary *Dictionary
	Geocoder   *Geocoder

	cached []*Cached
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Build opens every provider listed in cfg.Providers.Order, in that order.
// Providers without the settings they need (no store path, no dictionary
// path, no geocoder endpoint) are skipped with a log line. Slow providers
// are wrapped with Cached when the cache is enabled.
func Build(ctx context.Context, cfg *config.Config) (*Set, error) {
	set := &Set{}
	var list []Provider

	for _, name := range cfg.Providers.Order {
		var p Provider
		switch name {
		case config.ProviderStored:
			if cfg.Providers.Stored.Path == "" {
				slog.Info("provider_skipped", slog.String("provider", name), slog.String("reason", "no store path"))
				continue
			}
			store, err := OpenStore(cfg.Providers.Stored.Path)
			if err != nil {
				_ = set.Close()
				return nil, err
			}
			set.Store = store
			p = NewStored(store)

		case config.ProviderDictionary:
			dcfg := cfg.Providers.Dictionary
			if dcfg.Path == "" {
				slog.Info("provider_skipped", slog.String("provider", name), slog.String("reason", "no dictionary path"))
				continue
			}
			dict, err := LoadDictionary(dcfg.Path, dcfg.MinScore)
			if err != nil {
				_ = set.Close()
				return nil, err
			}
			set.Dictionary = dict
			p = dict

		case config.ProviderGeocoder:
			gcfg := cfg.Providers.Geocoder
			if gcfg.Endpoint == "" {
				slog.Info("provider_skipped", slog.String("provider", name), slog.String("reason", "no geocoder endpoint"))
				continue
			}
			geo, err := NewGeocoder(GeocoderConfig{
				Endpoint:       gcfg.Endpoint,
				APIKey:         gcfg.APIKey,
				Timeout:        cfg.GeocoderTimeout(),
				RatePerSecond:  gcfg.RatePerSecond,
				Burst:          gcfg.Burst,
				MaxRetries:     gcfg.MaxRetries,
				Count:          gcfg.Count,
				MinQueryLength: gcfg.MinQueryLength,
				MaxQueryLength: gcfg.MaxQueryLength,
				Languages:      gcfg.Languages,
			})
			if err != nil {
				_ = set.Close()
				return nil, err
			}
			set.Geocoder = geo
			if cfg.Providers.Cache.Enabled {
				c := NewCached(geo, cfg.Providers.Cache.Size)
				set.cached = append(set.cached, c)
				p = c
			} else {
				p = geo
			}

		default:
			_ = set.Close()
			return nil, rerrors.New(rerrors.ErrCodeUnknownProvider, "unknown provider "+name, nil).
				WithDetail("provider", name)
		}
		list = append(list, p)
	}

	reg, err := NewRegistry(list...)
	if err != nil {
		_ = set.Close()
		return nil, rerrors.ConfigError("register providers", err)
	}
	set.Registry = reg

	if set.Dictionary != nil && cfg.Providers.Dictionary.Watch {
		wctx, cancel := context.WithCancel(ctx)
		set.cancel = cancel
		set.wg.Add(1)
		go func() {
			defer set.wg.Done()
			if err := set.Dictionary.Watch(wctx); err != nil {
				slog.Warn("dictionary_watch_stopped", slog.String("error", err.Error()))
			}
		}()
	}

	slog.Info("providers_ready", slog.Any("order", reg.Names()))
	return set, nil
}

// CacheStats returns per-provider cache counters.
func (s *Set) CacheStats() map[string]CacheStats {
	out := make(map[string]CacheStats, len(s.cached))
	for _, c := range s.cached {
		out[c.Name()] = c.Stats()
	}
	return out
}

// Close stops the dictionary watcher and releases stores. Close is safe to
// call on a partially built Set.
func (s *Set) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	var errs []error
	if s.Dictionary != nil {
		errs = append(errs, s.Dictionary.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}
