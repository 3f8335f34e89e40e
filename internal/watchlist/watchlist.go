// Package watchlist holds the set of liquidity-provider wallets whose
// activity the relevance gate looks for.
package watchlist

import (
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/rewired-gh/lpwatch/internal/logger"
)

// Watchlist is an immutable set of addresses. Safe for concurrent reads.
type Watchlist struct {
	addrs map[solana.PublicKey]struct{}
}

// New builds a watchlist from already-parsed addresses.
func New(addrs ...solana.PublicKey) *Watchlist {
	w := &Watchlist{addrs: make(map[solana.PublicKey]struct{}, len(addrs))}
	for _, a := range addrs {
		w.addrs[a] = struct{}{}
	}
	return w
}

// Load reads {"lp_wallets": [...]} from path. A missing or unreadable file
// yields an empty watchlist; entries that are not valid addresses are skipped.
func Load(path string) *Watchlist {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		logger.Error("Failed to read watchlist %s: %v", path, err)
		return New()
	}

	var entries []string
	if err := v.UnmarshalKey("lp_wallets", &entries); err != nil {
		logger.Error("Failed to parse lp_wallets in %s: %v", path, err)
		return New()
	}

	addrs := make([]solana.PublicKey, 0, len(entries))
	for _, e := range entries {
		pk, err := solana.PublicKeyFromBase58(e)
		if err != nil {
			logger.Warn("Skipping invalid watchlist address %q: %v", e, err)
			continue
		}
		addrs = append(addrs, pk)
	}

	w := New(addrs...)
	logger.Info("Loaded %d LP wallets from %s", w.Len(), path)
	return w
}

// Contains reports whether addr is on the watchlist.
func (w *Watchlist) Contains(addr solana.PublicKey) bool {
	_, ok := w.addrs[addr]
	return ok
}

// AnyIn reports whether at least one of addrs is on the watchlist.
func (w *Watchlist) AnyIn(addrs []solana.PublicKey) bool {
	for _, a := range addrs {
		if w.Contains(a) {
			return true
		}
	}
	return false
}

// Matches returns the members of addrs that are on the watchlist, without duplicates.
func (w *Watchlist) Matches(addrs []solana.PublicKey) []solana.PublicKey {
	var out []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	for _, a := range addrs {
		if _, dup := seen[a]; dup || !w.Contains(a) {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Len returns the number of addresses.
func (w *Watchlist) Len() int {
	return len(w.addrs)
}
