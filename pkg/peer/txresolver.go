package peer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/weavegate/gateway/pkg/constants"
)

// TxResolver resolves a transaction identifier to the (dataRoot,
// txStartOffset, txSize) triple the chunk assembler needs, by querying a
// trusted node's transaction endpoints: GET /tx/{id}/offset for the
// transaction's absolute end-offset and data size, and GET /tx/{id} for
// its data_root.
type TxResolver struct {
	TrustedNodeURL string
	Client         *http.Client
}

// NewTxResolver builds a TxResolver against trustedNodeURL.
func NewTxResolver(trustedNodeURL string, client *http.Client) *TxResolver {
	if client == nil {
		client = &http.Client{Timeout: constants.PeerInfoTimeout}
	}
	return &TxResolver{TrustedNodeURL: trustedNodeURL, Client: client}
}

type txOffsetResponse struct {
	Offset string `json:"offset"` // absolute end-offset of the tx's data, decimal
	Size   string `json:"size"`   // decimal
}

type txDataRootResponse struct {
	DataRoot string `json:"data_root"` // base64-url
}

// ResolveTx implements chunkstier.TxResolver.
func (r *TxResolver) ResolveTx(ctx context.Context, id string) (dataRoot [32]byte, txStartOffset, txSize uint64, err error) {
	offsetResp, err := r.fetchOffset(ctx, id)
	if err != nil {
		return dataRoot, 0, 0, err
	}

	endOffset, err := strconv.ParseUint(offsetResp.Offset, 10, 64)
	if err != nil {
		return dataRoot, 0, 0, fmt.Errorf("peer: parse tx offset for %s: %w", id, err)
	}
	size, err := strconv.ParseUint(offsetResp.Size, 10, 64)
	if err != nil {
		return dataRoot, 0, 0, fmt.Errorf("peer: parse tx size for %s: %w", id, err)
	}
	if size == 0 || size > endOffset+1 {
		return dataRoot, 0, 0, fmt.Errorf("peer: tx %s has inconsistent offset/size (offset=%d size=%d)", id, endOffset, size)
	}
	startOffset := endOffset + 1 - size

	txResp, err := r.fetchTx(ctx, id)
	if err != nil {
		return dataRoot, 0, 0, err
	}
	rootBytes, err := base64.RawURLEncoding.DecodeString(txResp.DataRoot)
	if err != nil {
		return dataRoot, 0, 0, fmt.Errorf("peer: decode data_root for %s: %w", id, err)
	}
	if len(rootBytes) != constants.HashSize {
		return dataRoot, 0, 0, fmt.Errorf("peer: tx %s data_root has length %d, want %d", id, len(rootBytes), constants.HashSize)
	}
	copy(dataRoot[:], rootBytes)

	return dataRoot, startOffset, size, nil
}

func (r *TxResolver) fetchOffset(ctx context.Context, id string) (*txOffsetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.TrustedNodeURL+"/tx/"+id+"/offset", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: /tx/%s/offset returned status %d", id, resp.StatusCode)
	}
	var out txOffsetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("peer: decode /tx/%s/offset response: %w", id, err)
	}
	return &out, nil
}

func (r *TxResolver) fetchTx(ctx context.Context, id string) (*txDataRootResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.TrustedNodeURL+"/tx/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: /tx/%s returned status %d", id, resp.StatusCode)
	}
	var out txDataRootResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("peer: decode /tx/%s response: %w", id, err)
	}
	return &out, nil
}
