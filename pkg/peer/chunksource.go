package peer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/weavegate/gateway/pkg/chunk"
	"github.com/weavegate/gateway/pkg/constants"
)

// ChunkSource is a chunk.RawFetcher that fetches raw chunk bytes from the
// getChunk pool, choosing candidates via Manager.SelectPeersForOffset so a
// locator's absolute offset is served by a peer whose sync buckets actually
// cover it when that information is known. Wrap it in
// chunk.NewValidatingSource to get a chunk.Source that enforces Merkle and
// hash validation before returning anything to a caller.
type ChunkSource struct {
	Manager    *Manager
	Client     *http.Client
	Candidates int // peers tried, in order, per FetchRaw call
}

// NewChunkSource builds a ChunkSource drawing candidates from manager's
// getChunk pool.
func NewChunkSource(manager *Manager, client *http.Client) *ChunkSource {
	if client == nil {
		client = &http.Client{Timeout: constants.ChunkFetchTimeout}
	}
	return &ChunkSource{
		Manager:    manager,
		Client:     client,
		Candidates: constants.ChunkFetchCandidates,
	}
}

func (c *ChunkSource) Name() string { return "peer-chunks" }

// chunkWireResponse is the JSON body of GET /chunk/{absoluteOffset}: chunk,
// data_path and tx_path are all base64-url encoded.
type chunkWireResponse struct {
	Chunk    string `json:"chunk"`
	DataPath string `json:"data_path"`
	TxPath   string `json:"tx_path"`
}

// FetchRaw requests the chunk at loc.AbsoluteOffset, trying candidates from
// SelectPeersForOffset in order until one answers successfully. The
// response carries no separate content hash, so declaredHash is the sha256
// of the decoded chunk bytes; the Merkle data_path is what actually anchors
// the bytes to the transaction's data root.
func (c *ChunkSource) FetchRaw(ctx context.Context, loc chunk.Locator) (data, dataPath, txPath []byte, declaredHash [32]byte, err error) {
	n := c.Candidates
	if n <= 0 {
		n = constants.ChunkFetchCandidates
	}
	candidates := c.Manager.SelectPeersForOffset(loc.AbsoluteOffset, n)
	if len(candidates) == 0 {
		return nil, nil, nil, [32]byte{}, fmt.Errorf("peer: no getChunk candidates available for offset %d", loc.AbsoluteOffset)
	}

	var lastErr error
	for _, p := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, nil, [32]byte{}, ctxErr
		}

		data, dataPath, txPath, fetchErr := c.fetchFrom(ctx, p.ID, loc.AbsoluteOffset)
		if fetchErr == nil {
			c.Manager.ReportSuccess(CategoryGetChunk, p.ID, 0)
			return data, dataPath, txPath, sha256.Sum256(data), nil
		}
		c.Manager.ReportFailure(CategoryGetChunk, p.ID)
		lastErr = fetchErr
	}
	return nil, nil, nil, [32]byte{}, fmt.Errorf("peer: all getChunk candidates failed for offset %d: %w", loc.AbsoluteOffset, lastErr)
}

func (c *ChunkSource) fetchFrom(ctx context.Context, host string, absoluteOffset uint64) (data, dataPath, txPath []byte, err error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ChunkFetchTimeout)
	defer cancel()

	url := "http://" + host + "/chunk/" + strconv.FormatUint(absoluteOffset, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, nil, fmt.Errorf("peer: /chunk/%d returned status %d", absoluteOffset, resp.StatusCode)
	}

	var wire chunkWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, nil, nil, fmt.Errorf("peer: decode /chunk response: %w", err)
	}

	data, err = base64.RawURLEncoding.DecodeString(wire.Chunk)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("peer: decode chunk bytes: %w", err)
	}
	dataPath, err = base64.RawURLEncoding.DecodeString(wire.DataPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("peer: decode data_path: %w", err)
	}
	if wire.TxPath != "" {
		txPath, err = base64.RawURLEncoding.DecodeString(wire.TxPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("peer: decode tx_path: %w", err)
		}
	}
	return data, dataPath, txPath, nil
}
