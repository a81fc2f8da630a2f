package txflow

import (
	"context"
	"errors"
)

// Simulator performs a read-only dry run of a built call against the
// node. No state is committed.
type Simulator struct {
	client NodeClient
}

func NewSimulator(client NodeClient) *Simulator {
	return &Simulator{client: client}
}

func (s *Simulator) Simulate(ctx context.Context, call *UnsignedCall) (SimulationResult, error) {
	if s.client == nil {
		return SimulationResult{}, errors.New("node client is required")
	}
	if call == nil {
		return SimulationResult{}, errors.New("call is nil")
	}
	ret, err := s.client.CallContract(ctx, call.callMsg(), nil)
	if err != nil {
		return SimulationResult{}, &SimulationError{Diagnostic: err.Error(), Err: err}
	}
	return SimulationResult{Return: ret}, nil
}
