package txflow

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Builder assembles a contract invocation into an unsigned call bound to
// a fixed expiry window. The caller's sequence state is fetched fresh on
// every build; nothing is cached across attempts.
type Builder struct {
	client       NodeClient
	expiryWindow time.Duration
	now          func() time.Time
}

func NewBuilder(client NodeClient, expiryWindow time.Duration) *Builder {
	if expiryWindow <= 0 {
		expiryWindow = 120 * time.Second
	}
	return &Builder{client: client, expiryWindow: expiryWindow, now: time.Now}
}

func NewBuilderWithClock(client NodeClient, expiryWindow time.Duration, now func() time.Time) *Builder {
	b := NewBuilder(client, expiryWindow)
	if now != nil {
		b.now = now
	}
	return b
}

func (b *Builder) Build(ctx context.Context, req CallRequest) (*UnsignedCall, error) {
	if b.client == nil {
		return nil, errors.New("node client is required")
	}
	if req.Method == "" {
		return nil, errors.New("method is required")
	}
	if req.Contract == (common.Address{}) {
		return nil, errors.New("contract address is required")
	}
	nonce, err := b.client.PendingNonceAt(ctx, req.Caller)
	if err != nil {
		return nil, &AccountLookupError{Account: req.Caller, Err: err}
	}
	return &UnsignedCall{
		Request:   req,
		Nonce:     nonce,
		Data:      Calldata(req.Method, req.Args),
		ExpiresAt: b.now().Add(b.expiryWindow),
	}, nil
}
