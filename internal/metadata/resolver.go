package metadata

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rewired-gh/lpwatch/internal/logger"
)

// AccountFetcher reads a single account. *rpc.Client satisfies it.
type AccountFetcher interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// Source resolves metadata for a mint.
type Source interface {
	Resolve(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error)
}

// Resolver fetches and decodes metadata accounts without caching.
type Resolver struct {
	client AccountFetcher
}

// NewResolver creates a Resolver reading through client.
func NewResolver(client AccountFetcher) *Resolver {
	return &Resolver{client: client}
}

// Resolve derives the metadata address for mint, fetches it and decodes it.
// Fetch failures (including a missing account) wrap ErrRPC; undecodable data
// wraps ErrDeserialization.
func (r *Resolver) Resolve(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	addr, err := FindMetadataAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("%w: derive metadata address for %s: %v", ErrRPC, mint, err)
	}

	res, err := r.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s for mint %s: %v", ErrRPC, addr, mint, err)
	}
	if res == nil || res.Value == nil {
		return nil, fmt.Errorf("%w: account %s for mint %s not found", ErrRPC, addr, mint)
	}

	if !res.Value.Owner.Equals(ProgramID) {
		logger.WithFields(logger.Fields{
			"mint":    mint.String(),
			"account": addr.String(),
			"owner":   res.Value.Owner.String(),
		}).Warn("Metadata account is not owned by the token metadata program")
	}

	var data []byte
	if res.Value.Data != nil {
		data = res.Value.Data.GetBinary()
	}
	md, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", mint, err)
	}
	return md, nil
}
