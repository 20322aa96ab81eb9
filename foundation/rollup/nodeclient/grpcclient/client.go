package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient"
)

// Compile-time interface check.
var _ nodeclient.Client = (*Client)(nil)

// serviceName is the fully qualified gRPC service the node exposes.
const serviceName = "rollclient.node.v1.Node"

// Client implements nodeclient.Client against a remote node over gRPC.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote node.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(JSONCodec{}),
	))

	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("node client: dial %s: %w", addr, err)
	}

	return &Client{cc: cc}, nil
}

// Close terminates the connection.
func (c *Client) Close() error {
	return c.cc.Close()
}

// =============================================================================

// headerRequest and headerResponse frame the BlockHeaderByNumber call.
type headerRequest struct {
	BlockNum uint64 `json:"block_num"`
}

type headerResponse struct {
	Header database.BlockHeader `json:"header"`
	Peaks  mmr.Peaks            `json:"peaks"`
}

// submitRequest and submitResponse frame the SubmitProvenTransaction call.
type submitRequest struct {
	Transaction []byte `json:"transaction"`
}

type submitResponse struct{}

// =============================================================================

// BlockHeaderByNumber implements the nodeclient.Client interface.
func (c *Client) BlockHeaderByNumber(ctx context.Context, blockNum uint64) (database.BlockHeader, mmr.Peaks, error) {
	req := headerRequest{BlockNum: blockNum}

	var resp headerResponse
	if err := c.cc.Invoke(ctx, fullMethod("BlockHeaderByNumber"), &req, &resp); err != nil {
		return database.BlockHeader{}, nil, fmt.Errorf("node client: block header by number: %w", err)
	}

	return resp.Header, resp.Peaks, nil
}

// SyncState implements the nodeclient.Client interface.
func (c *Client) SyncState(ctx context.Context, req nodeclient.SyncRequest) (nodeclient.SyncDelta, error) {
	var resp nodeclient.SyncDelta
	if err := c.cc.Invoke(ctx, fullMethod("SyncState"), &req, &resp); err != nil {
		return nodeclient.SyncDelta{}, fmt.Errorf("node client: sync state: %w", err)
	}

	return resp, nil
}

// SubmitProvenTransaction implements the nodeclient.Client interface.
func (c *Client) SubmitProvenTransaction(ctx context.Context, tx []byte) error {
	req := submitRequest{Transaction: tx}

	var resp submitResponse
	if err := c.cc.Invoke(ctx, fullMethod("SubmitProvenTransaction"), &req, &resp); err != nil {
		return fmt.Errorf("node client: submit proven transaction: %w", err)
	}

	return nil
}

// fullMethod forms the gRPC method path.
func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}
