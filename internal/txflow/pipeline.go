package txflow

import (
	"context"
	"log/slog"
)

// Recorder observes pipeline outcomes; the metrics package implements it.
type Recorder interface {
	RecordSimulation(ok bool)
	RecordSubmission(status Status)
	RecordPollAttempts(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSimulation(bool)   {}
func (nopRecorder) RecordSubmission(Status) {}
func (nopRecorder) RecordPollAttempts(int)  {}

// Pipeline runs the full submission flow: build, simulate, prepare,
// sign, send, poll. A request that fails simulation never reaches the
// signer or the network. Read-only queries stop after simulation.
type Pipeline struct {
	builder   *Builder
	simulator *Simulator
	preparer  *Preparer
	submitter *Submitter
	logger    *slog.Logger
	recorder  Recorder
}

func NewPipeline(builder *Builder, simulator *Simulator, preparer *Preparer, submitter *Submitter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		builder:   builder,
		simulator: simulator,
		preparer:  preparer,
		submitter: submitter,
		logger:    logger,
		recorder:  nopRecorder{},
	}
}

func (p *Pipeline) SetRecorder(r Recorder) {
	if r != nil {
		p.recorder = r
	}
}

// Start launches the background fee refresh. It returns immediately.
func (p *Pipeline) Start(ctx context.Context) {
	if p.preparer == nil || p.preparer.oracle == nil {
		return
	}
	go p.preparer.oracle.Start(ctx)
}

// Query builds and simulates a read-only invocation, short-circuiting
// before any signing or submission.
func (p *Pipeline) Query(ctx context.Context, req CallRequest) (SimulationResult, error) {
	call, err := p.builder.Build(ctx, req)
	if err != nil {
		return SimulationResult{}, err
	}
	sim, err := p.simulator.Simulate(ctx, call)
	p.recorder.RecordSimulation(err == nil)
	return sim, err
}

// Execute runs a state-changing invocation end to end using the supplied
// signing capability.
func (p *Pipeline) Execute(ctx context.Context, req CallRequest, signer Signer) (*SubmissionOutcome, error) {
	if signer == nil {
		return nil, &WalletUnavailableError{}
	}
	call, err := p.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	sim, err := p.simulator.Simulate(ctx, call)
	p.recorder.RecordSimulation(err == nil)
	if err != nil {
		return nil, err
	}
	prepared, err := p.preparer.Prepare(ctx, call, sim)
	if err != nil {
		return nil, err
	}
	raw, err := prepared.Encoded()
	if err != nil {
		return nil, err
	}
	signed, err := signer.SignTransaction(ctx, raw, p.preparer.ChainID())
	if err != nil {
		return nil, err
	}
	outcome, err := p.submitter.Submit(ctx, prepared, signed)
	if outcome != nil {
		p.recorder.RecordSubmission(outcome.Status)
		p.recorder.RecordPollAttempts(outcome.Polls)
		p.logger.Info("submission finished",
			"hash", outcome.Hash.Hex(),
			"status", string(outcome.Status),
			"method", req.Method,
		)
	}
	return outcome, err
}
