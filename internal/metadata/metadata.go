// Package metadata resolves human-readable token names and symbols from
// Metaplex token-metadata accounts.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the Metaplex token-metadata program.
var ProgramID = solana.TokenMetadataProgramID

// keyMetadataV1 is the account discriminant of a Metadata account.
const keyMetadataV1 uint8 = 4

var (
	// ErrRPC reports a failed or empty account fetch.
	ErrRPC = errors.New("metadata rpc error")
	// ErrDeserialization reports account data that is not a Metadata account.
	ErrDeserialization = errors.New("metadata deserialization error")
)

// TokenMetadata is the subset of a Metadata account the watcher needs.
type TokenMetadata struct {
	Mint            solana.PublicKey
	UpdateAuthority solana.PublicKey
	Name            string
	Symbol          string
	URI             string
}

// onchainMetadata mirrors the fixed prefix of the Metadata account layout.
// Fields after seller_fee_basis_points are ignored.
type onchainMetadata struct {
	Key                  uint8
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
}

// Decode parses raw Metadata account data and trims the fixed-width padding
// from name, symbol and uri.
func Decode(data []byte) (*TokenMetadata, error) {
	var raw onchainMetadata
	if err := bin.NewBorshDecoder(data).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if raw.Key != keyMetadataV1 {
		return nil, fmt.Errorf("%w: unexpected account key %d", ErrDeserialization, raw.Key)
	}
	return &TokenMetadata{
		Mint:            raw.Mint,
		UpdateAuthority: raw.UpdateAuthority,
		Name:            TrimPadding(raw.Name),
		Symbol:          TrimPadding(raw.Symbol),
		URI:             TrimPadding(raw.URI),
	}, nil
}

// TrimPadding strips trailing NUL bytes only. Leading NULs, spaces and
// interior NULs are kept.
func TrimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}

// FindMetadataAddress derives the metadata account for mint from the seeds
// ["metadata", ProgramID, mint].
func FindMetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			ProgramID[:],
			mint[:],
		},
		ProgramID,
	)
	return addr, err
}
