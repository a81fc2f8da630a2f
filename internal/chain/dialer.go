package chain

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Handle is the shared connection to the remote node.
type Handle struct {
	RPC *rpc.Client
	Eth *ethclient.Client
}

func (h *Handle) Close() {
	if h == nil {
		return
	}
	if h.Eth != nil {
		h.Eth.Close()
	}
	if h.RPC != nil {
		h.RPC.Close()
	}
}

// Dialer hands out a lazily-created node handle. The connection is
// established at most once per Dialer and reused; concurrent first use
// resolves to the same handle (or the same error).
type Dialer struct {
	url     string
	timeout time.Duration

	once   sync.Once
	handle *Handle
	err    error
}

func NewDialer(url string, timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dialer{url: url, timeout: timeout}
}

// Handle returns the shared handle, dialing on first use.
func (d *Dialer) Handle(ctx context.Context) (*Handle, error) {
	d.once.Do(func() {
		d.handle, d.err = dial(ctx, d.url, d.timeout)
	})
	return d.handle, d.err
}

func dial(ctx context.Context, url string, timeout time.Duration) (*Handle, error) {
	httpClient := &http.Client{Timeout: timeout}
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	rpcClient.SetHeader("User-Agent", "remitlend")
	return &Handle{RPC: rpcClient, Eth: ethclient.NewClient(rpcClient)}, nil
}
