package ignition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"LSRWA-Express/internal/artifacts"
	xerrors "LSRWA-Express/internal/errors"
	"LSRWA-Express/internal/events"
	"LSRWA-Express/internal/lock"
	storage "LSRWA-Express/internal/storage/mysql"
	"LSRWA-Express/internal/web3"
	"LSRWA-Express/pkg/logger"
)

// Runner executes modules against one network.
type Runner struct {
	client    web3.Client
	network   string
	store     *artifacts.Store
	records   storage.RecordRepository
	publisher events.Publisher
	locker    lock.Locker
	lookup    LookupFunc

	log         *slog.Logger
	audit       *slog.Logger
	waitTimeout time.Duration
	runID       string
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisher broadcasts a future_executed event per executed future.
func WithPublisher(pub events.Publisher) Option {
	return func(r *Runner) { r.publisher = pub }
}

// WithLocker guards the signer for the whole run.
func WithLocker(locker lock.Locker) Option {
	return func(r *Runner) { r.locker = locker }
}

// WithLookup resolves ${VAR} references in arguments.
func WithLookup(lookup LookupFunc) Option {
	return func(r *Runner) { r.lookup = lookup }
}

// WithWaitTimeout bounds the wait for each transaction.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Runner) { r.waitTimeout = d }
}

// WithRunID tags journal records with an externally chosen run id so they
// can be correlated with other records of the same invocation.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner builds a Runner. The journal is required because it drives
// resumption.
func NewRunner(client web3.Client, network string, store *artifacts.Store, records storage.RecordRepository, opts ...Option) (*Runner, error) {
	if client == nil || store == nil {
		return nil, errors.New("ignition: chain client and artifact store are required")
	}
	if records == nil {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "ignition: a deployment journal is required")
	}
	r := &Runner{
		client:    client,
		network:   network,
		store:     store,
		records:   records,
		publisher: events.NopPublisher{},
		locker:    lock.NopLocker{},
		log:       logger.Named("ignition"),
		audit:     logger.Audit(),
		runID:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FutureResult is the outcome of one future in a run.
type FutureResult struct {
	ID          string
	Kind        FutureKind
	Address     common.Address
	TxHash      string
	BlockNumber uint64
	// Reused is set when the future was found in the journal.
	Reused bool
}

// Result is the outcome of a module run.
type Result struct {
	Module  string
	RunID   string
	Futures []FutureResult
	// Addresses maps journal future ids of contract futures to addresses.
	Addresses map[string]common.Address
	// Returns maps the module's named returns to addresses.
	Returns map[string]common.Address
}

// Run executes every future not yet journaled for this chain, in order.
func (r *Runner) Run(ctx context.Context, m *Module, signer *web3.Signer) (Result, error) {
	if signer == nil {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "no account configured for the selected network")
	}
	chainID, err := r.client.ChainID(ctx)
	if err != nil {
		return Result{}, err
	}

	release, err := r.locker.Acquire(ctx, lock.Key(r.network, signer.Address()))
	if err != nil {
		return Result{}, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			r.log.Warn("failed to release signer lock", "error", err)
		}
	}()

	result := Result{
		Module:    m.Name,
		RunID:     r.runID,
		Addresses: make(map[string]common.Address),
		Returns:   make(map[string]common.Address),
	}
	local := make(map[string]common.Address)
	contracts := make(map[string]*artifacts.Artifact)

	for _, future := range m.Futures {
		futureID := m.FutureID(future)
		artifact, err := r.artifactFor(future, contracts)
		if err != nil {
			return result, err
		}

		journaled, err := r.records.FindFuture(ctx, chainID.Int64(), m.Name, futureID)
		switch {
		case err == nil:
			fr := FutureResult{ID: futureID, Kind: future.Kind(), TxHash: journaled.TxHash, BlockNumber: journaled.BlockNumber, Reused: true}
			if future.Kind() == FutureContract {
				fr.Address = common.HexToAddress(journaled.Address)
				local[future.ID] = fr.Address
				result.Addresses[futureID] = fr.Address
			}
			r.log.Info("future already executed, skipping", "future", futureID, "tx_hash", journaled.TxHash)
			result.Futures = append(result.Futures, fr)
			continue
		case xerrors.CodeOf(err) != xerrors.CodeNotFound:
			return result, err
		}

		fr, err := r.execute(ctx, m, future, artifact, signer, chainID.Int64(), local)
		if err != nil {
			return result, fmt.Errorf("future %s: %w", futureID, err)
		}
		if future.Kind() == FutureContract {
			local[future.ID] = fr.Address
			result.Addresses[futureID] = fr.Address
		}
		result.Futures = append(result.Futures, fr)
	}

	for name, id := range m.Returns {
		result.Returns[name] = local[id]
	}
	return result, nil
}

func (r *Runner) artifactFor(future Future, contracts map[string]*artifacts.Artifact) (*artifacts.Artifact, error) {
	if future.Kind() == FutureCall {
		return contracts[future.Target], nil
	}
	artifact, err := r.store.Load(future.Contract)
	if err != nil {
		return nil, err
	}
	contracts[future.ID] = artifact
	return artifact, nil
}

func (r *Runner) execute(ctx context.Context, m *Module, future Future, artifact *artifacts.Artifact, signer *web3.Signer, chainID int64, local map[string]common.Address) (FutureResult, error) {
	futureID := m.FutureID(future)
	record := storage.DeploymentRecord{
		ID:        uuid.NewString(),
		RunID:     r.runID,
		Network:   r.network,
		ChainID:   chainID,
		Module:    m.Name,
		FutureID:  futureID,
		Contract:  artifact.ContractName,
		Signer:    signer.Address().Hex(),
		Status:    storage.StatusSuccess,
		CreatedAt: time.Now().Unix(),
	}

	waitCtx, cancel := context.WithCancel(ctx)
	if r.waitTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, r.waitTimeout)
	}
	defer cancel()
	opts := signer.TransactOpts(waitCtx)

	var (
		mined web3.Mined
		err   error
	)
	fr := FutureResult{ID: futureID, Kind: future.Kind()}
	switch future.Kind() {
	case FutureContract:
		var values []any
		values, record.Args, err = resolveArgs(artifact.ABI().Constructor.Inputs, future.Args, r.lookup, local)
		if err != nil {
			return fr, err
		}
		var code []byte
		code, err = artifact.CreationCode()
		if err != nil {
			return fr, err
		}
		record.Kind = storage.KindDeploy
		r.log.Info("deploying", "future", futureID, "contract", artifact.ContractName)
		mined, err = web3.DeployAndWait(waitCtx, r.client, opts, artifact.ABI(), code, values...)
		fr.Address = mined.Address
		if mined.Address != (common.Address{}) {
			record.Address = mined.Address.Hex()
		}
		r.finish(ctx, &record, mined, err)
		if err != nil {
			return fr, err
		}
	case FutureCall:
		method, ok := artifact.ABI().Methods[future.Call]
		if !ok {
			return fr, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("contract %s has no method %s", artifact.ContractName, future.Call))
		}
		var values []any
		values, record.Args, err = resolveArgs(method.Inputs, future.Args, r.lookup, local)
		if err != nil {
			return fr, err
		}
		opts.Value, err = parseValue(future.Value)
		if err != nil {
			return fr, err
		}
		target := local[future.Target]
		record.Kind = storage.KindCall
		record.Method = future.Call
		record.Address = target.Hex()
		r.log.Info("calling", "future", futureID, "contract", target.Hex(), "method", future.Call)
		mined, err = web3.TransactAndWait(waitCtx, r.client, opts, target, artifact.ABI(), future.Call, values...)
		fr.Address = target
		r.finish(ctx, &record, mined, err)
		if err != nil {
			return fr, err
		}
	}

	fr.TxHash = record.TxHash
	fr.BlockNumber = record.BlockNumber
	if err := r.records.Save(ctx, record); err != nil {
		return fr, err
	}
	if err := r.publisher.Publish(ctx, events.Event{
		Type:     events.FutureExecuted,
		Network:  r.network,
		ChainID:  chainID,
		Contract: artifact.ContractName,
		Address:  fr.Address.Hex(),
		TxHash:   record.TxHash,
		Module:   m.Name,
		FutureID: futureID,
	}); err != nil {
		r.log.Warn("failed to publish event", "future", futureID, "error", err)
	}
	return fr, nil
}

// finish fills the record from the mined transaction. Failed futures are
// journaled immediately since Run stops at the first failure.
func (r *Runner) finish(ctx context.Context, record *storage.DeploymentRecord, mined web3.Mined, err error) {
	if mined.TxHash != (common.Hash{}) {
		record.TxHash = mined.TxHash.Hex()
	}
	record.BlockNumber = mined.BlockNumber
	r.audit.Info("transaction", "kind", record.Kind, "network", r.network, "future", record.FutureID,
		"tx_hash", record.TxHash, "status", statusOf(err))
	if err == nil {
		return
	}
	record.Status = storage.StatusFailed
	record.Detail = err.Error()
	if saveErr := r.records.Save(ctx, *record); saveErr != nil {
		r.log.Error("failed to journal failed future", "future", record.FutureID, "error", saveErr)
	}
}

func statusOf(err error) string {
	if err != nil {
		return storage.StatusFailed
	}
	return storage.StatusSuccess
}

// FutureStatus reports whether a future has been executed on a chain.
type FutureStatus struct {
	ID       string
	Kind     FutureKind
	Executed bool
	Record   *storage.DeploymentRecord
}

// Status lists the journal state of every future for the client's chain.
func (r *Runner) Status(ctx context.Context, m *Module) ([]FutureStatus, error) {
	chainID, err := r.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]FutureStatus, 0, len(m.Futures))
	for _, future := range m.Futures {
		status := FutureStatus{ID: m.FutureID(future), Kind: future.Kind()}
		record, err := r.records.FindFuture(ctx, chainID.Int64(), m.Name, status.ID)
		switch {
		case err == nil:
			status.Executed = true
			status.Record = record
		case xerrors.CodeOf(err) != xerrors.CodeNotFound:
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
