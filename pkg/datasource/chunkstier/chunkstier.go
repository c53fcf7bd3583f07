// Package chunkstier is the "chunks" tier of the composite data source: the
// fallback that reconstructs a contiguous stream directly from individual
// chunks when no faster tier has the content. It wires
// pkg/assembler and pkg/chunk together behind the Tier interface.
package chunkstier

import (
	"context"

	"github.com/weavegate/gateway/pkg/assembler"
	"github.com/weavegate/gateway/pkg/chunk"
	"github.com/weavegate/gateway/pkg/datasource"
	"github.com/weavegate/gateway/pkg/gatewayerr"
	"github.com/weavegate/gateway/pkg/identifier"
)

// TxResolver resolves a content identifier to the transaction's data root,
// start offset within the weave, and size — the inputs the chunk assembler
// needs. It is an external collaborator: how an id maps to a transaction is outside this tier's scope.
type TxResolver interface {
	ResolveTx(ctx context.Context, id string) (dataRoot [32]byte, txStartOffset, txSize uint64, err error)
}

// Tier assembles a contiguous stream from chunks on demand.
type Tier struct {
	Resolver TxResolver
	Source   chunk.Source
}

// New builds a chunkstier.Tier.
func New(resolver TxResolver, source chunk.Source) *Tier {
	return &Tier{Resolver: resolver, Source: source}
}

func (t *Tier) Name() string { return "chunks" }

func (t *Tier) Fetch(ctx context.Context, req datasource.Request) (*datasource.ContiguousData, error) {
	if err := identifier.Validate(req.ID); err != nil {
		return nil, err
	}

	dataRoot, txStartOffset, txSize, err := t.Resolver.ResolveTx(ctx, req.ID)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindNotFound, "failed to resolve identifier to transaction", "chunks", err)
	}

	window := assembler.Full(txSize)
	if req.Region != nil {
		window = assembler.Window{Start: req.Region.Offset, End: req.Region.End()}
	}

	stream := assembler.New(ctx, t.Source, dataRoot, txStartOffset, txSize, window)

	return &datasource.ContiguousData{
		Stream:   stream,
		Size:     window.End - window.Start,
		Verified: true,
		Trusted:  false,
		Cached:   false,
	}, nil
}
