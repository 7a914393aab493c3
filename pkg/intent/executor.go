package intent

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/hyperbridge-core/pkg/coreerrors"
)

// Simulator runs a read-only eth_call against a contract, used to dry-run a bid's
// select()+fillOrder() pair before committing to it (§4.6.2). A concrete implementation
// wraps go-ethereum's ethclient.CallContract exactly as pkg/chainadapter's EVM adapter
// wraps ethclient for its own RPC calls; Executor only needs the narrow read-only slice.
type Simulator interface {
	Simulate(ctx context.Context, to common.Address, calldata []byte) ([]byte, error)
}

// Executor runs the execute phase of an order (§4.6.2): collect bids, rank them, simulate
// and select a winner, sign and submit its user-operation to the bundler, then poll for
// the fill outcome. Grounded on pkg/intent/discovery.go's shape — a long-lived component
// holding its dependencies and a logger, exposing one blocking entry point per unit of
// work it drives to completion.
type Executor struct {
	bundler        BundlerClient
	bids           BidStore
	oracle         PriceOracle
	sim            Simulator
	entryPoint     common.Address
	batchExecutor  common.Address
	chainID        *big.Int
	stablecoins    map[common.Address]int
	wrappedNative  common.Address
	minBids        int
	bidTimeoutMs   int
	pollInterval   time.Duration
	receiptRetries int
	receiptBackoff time.Duration
	logger         *log.Logger
}

// NewExecutor wires an Executor's dependencies.
func NewExecutor(bundler BundlerClient, bids BidStore, oracle PriceOracle, sim Simulator, entryPoint, batchExecutor common.Address, chainID *big.Int, stablecoins map[common.Address]int, wrappedNative common.Address, minBids, bidTimeoutMs int, pollInterval time.Duration, logger *log.Logger) *Executor {
	return &Executor{
		bundler:        bundler,
		bids:           bids,
		oracle:         oracle,
		sim:            sim,
		entryPoint:     entryPoint,
		batchExecutor:  batchExecutor,
		chainID:        chainID,
		stablecoins:    stablecoins,
		wrappedNative:  wrappedNative,
		minBids:        minBids,
		bidTimeoutMs:   bidTimeoutMs,
		pollInterval:   pollInterval,
		receiptRetries: 5,
		receiptBackoff: 2 * time.Second,
		logger:         logger,
	}
}

// FillOutcome is what Execute reports once a bid's user-operation has landed.
type FillOutcome struct {
	Solver  common.Address
	Full    bool
	Receipt *UserOpReceipt
}

// Execute implements §4.6.2 end to end: poll bids, rank by promised USD value, simulate
// each candidate in rank order until one succeeds, sign and submit it, then poll its
// receipt. A PartialFill loops back into bid collection (same-chain re-entry) with the
// consumed (solver, nonce) excluded; an OrderFilled terminates the loop.
func (x *Executor) Execute(ctx context.Context, order OrderV2, commitment [32]byte, session SessionKey) (*FillOutcome, error) {
	domain := domainSeparator("HyperbridgeIntents", "1", x.chainID, x.batchExecutor)
	used := map[usedKey]bool{}

	for {
		bids, err := PollBids(ctx, x.bids, commitment[:], x.minBids, x.bidTimeoutMs, used, x.pollInterval, x.logger)
		if err != nil {
			return nil, err
		}
		if len(bids) == 0 {
			return nil, fmt.Errorf("intent: no bids received for order %x within %dms", commitment, x.bidTimeoutMs)
		}

		valid := FilterValidBids(order, bids)
		if len(valid) == 0 {
			return nil, fmt.Errorf("intent: no bid for order %x met the requested output: %w", commitment, coreerrors.ErrNoViableBid)
		}

		ranked, err := RankBids(ctx, valid, x.stablecoins, x.wrappedNative, x.oracle)
		if err != nil {
			return nil, err
		}

		winner, err := x.selectAndSign(ctx, ranked, domain, commitment, session)
		if err != nil {
			return nil, err
		}

		receipt, err := x.submitAndPoll(ctx, winner)
		if err != nil {
			return nil, err
		}

		solver := addressFromBytes(winner.Filler)
		used[usedKey{solver: solver, nonce: winner.UserOp.Nonce.Uint64()}] = true

		full, err := classifyFillReceipt(receipt)
		if err != nil {
			return nil, err
		}
		if full {
			x.logger.Printf("✅ intent: order %x filled in full by %s", commitment, solver)
			return &FillOutcome{Solver: solver, Full: true, Receipt: receipt}, nil
		}
		x.logger.Printf("🔄 intent: order %x partially filled by %s, re-entering bid collection", commitment, solver)
	}
}

// selectAndSign simulates ranked bids in order and returns the first one whose
// select()+fillOrder() pair succeeds, with its session-key signature already attached to
// its user-operation's Signature field (concatenated with the solver's own).
func (x *Executor) selectAndSign(ctx context.Context, ranked []RankedBid, domain []byte, commitment [32]byte, session SessionKey) (FillerBid, error) {
	for _, r := range ranked {
		solver := addressFromBytes(r.Bid.Filler)
		solverSig := r.Bid.UserOp.Signature

		sessionSig, err := SignSelectSolver(session, domain, commitment, solver)
		if err != nil {
			x.logger.Printf("⚠️ intent: could not sign SelectSolver for %s: %v", solver, err)
			continue
		}
		combined := ConcatSignatures(sessionSig, solverSig)

		selectCalldata := encodeSelectCalldata(commitment, [20]byte(solver), combined)
		if _, err := x.sim.Simulate(ctx, x.batchExecutor, selectCalldata); err != nil {
			x.logger.Printf("⚠️ intent: select() simulation failed for %s: %v", solver, err)
			continue
		}
		if _, err := x.sim.Simulate(ctx, x.batchExecutor, r.Bid.UserOp.CallData); err != nil {
			x.logger.Printf("⚠️ intent: fillOrder simulation failed for %s: %v", solver, err)
			continue
		}

		winner := r.Bid
		winner.UserOp.Signature = combined
		return winner, nil
	}
	return FillerBid{}, fmt.Errorf("intent: no bid for commitment %x survived simulation: %w", commitment, coreerrors.ErrSimulationFailed)
}

// submitAndPoll converts the winning bid's packed user-operation to the bundler's
// unpacked shape, submits it, and polls for its receipt.
func (x *Executor) submitAndPoll(ctx context.Context, bid FillerBid) (*UserOpReceipt, error) {
	unpacked := Unpack(bid.UserOp)

	hash, err := x.bundler.SendUserOperation(ctx, unpacked, x.entryPoint)
	if err != nil {
		return nil, fmt.Errorf("intent: submit user operation: %w", err)
	}

	return pollReceipt(ctx, x.bundler, hash, x.receiptRetries, x.receiptBackoff)
}

// classifyFillReceipt inspects a user-operation receipt's logs for OrderFilled (full) or
// PartialFill (partial), per §4.6.2.
func classifyFillReceipt(receipt *UserOpReceipt) (full bool, err error) {
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case common.BytesToHash(orderFilledTopic):
			return true, nil
		case common.BytesToHash(partialFillTopic):
			return false, nil
		}
	}
	if receipt.Success {
		// Contract executed without reverting but emitted neither event this repo
		// recognizes: treat as a full fill rather than looping forever.
		return true, nil
	}
	return false, fmt.Errorf("intent: user operation %s reverted", receipt.UserOpHash)
}
