package submit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
)

var (
	// ErrRejected marks a deterministic rejection; retrying the same transaction cannot succeed.
	ErrRejected = errors.New("transaction rejected")
	// ErrRelayUnavailable means the bundle relay could not be reached in time or
	// refused the bundle.
	ErrRelayUnavailable = errors.New("bundle relay unavailable")
)

// Sender broadcasts a signed transaction over RPC.
type Sender interface {
	SendTransaction(ctx context.Context, encoded string, opts solana.SendOptions) (string, error)
}

// BundleSender submits a bundle to a block engine.
type BundleSender interface {
	SendBundle(ctx context.Context, encoded []string) (string, error)
}

// StatusChecker reports signature statuses for confirmation tracking.
type StatusChecker interface {
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*solana.SignatureStatus, error)
}

// CongestionSource supplies the current congestion factor.
type CongestionSource interface {
	Factor() float64
}

// Submission is the result of one dispatch.
type Submission struct {
	Signature   string
	Route       domain.Route
	BundleID    string
	TipLamports uint64
	Blockhash   string
	SentAt      time.Time
	// FellBack is set when a bundle attempt was abandoned for direct broadcast.
	FellBack bool
}

// Config configures a Dispatcher.
type Config struct {
	Policy       Policy
	TipAccount   string
	RelayTimeout time.Duration
	SendTimeout  time.Duration
}

// Dispatcher signs a candidate against a blockhash and submits it.
type Dispatcher struct {
	rpc        Sender
	relay      BundleSender
	tips       *TipCalculator
	congestion CongestionSource
	tipAccount solanago.PublicKey
	cfg        Config
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. relay may be nil, which disables bundles.
func NewDispatcher(rpc Sender, relay BundleSender, tips *TipCalculator, congestion CongestionSource, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		rpc:        rpc,
		relay:      relay,
		tips:       tips,
		congestion: congestion,
		cfg:        cfg,
		logger:     logger,
	}
	if relay != nil {
		account := cfg.TipAccount
		if account == "" {
			account = solana.DefaultJitoTipAccount
		}
		pk, err := solanago.PublicKeyFromBase58(account)
		if err != nil {
			return nil, fmt.Errorf("tip account %q: %w", account, err)
		}
		d.tipAccount = pk
	}
	return d, nil
}

// Route returns the route Dispatch would try first for an urgency.
func (d *Dispatcher) Route(u domain.Urgency) domain.Route {
	if d.relay == nil || d.tips == nil {
		return domain.RouteDirect
	}
	return SelectRoute(d.cfg.Policy, u)
}

// Dispatch signs the candidate with blockhash and submits it. A bundle the relay
// fails to accept, for any reason, falls back once to direct broadcast; only the
// direct result is classified.
func (d *Dispatcher) Dispatch(ctx context.Context, c *domain.ExecutionCandidate, blockhash string) (*Submission, error) {
	if d.Route(c.Urgency) == domain.RouteBundle {
		sub, err := d.sendBundle(ctx, c, blockhash)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, ErrRelayUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		d.logger.Warn("bundle not accepted, falling back to direct",
			zap.String("candidate", c.ID),
			zap.Error(err),
		)
		observability.RecordFallback()

		sub, err = d.sendDirect(ctx, c, blockhash)
		if err != nil {
			return nil, err
		}
		sub.FellBack = true
		return sub, nil
	}
	return d.sendDirect(ctx, c, blockhash)
}

func (d *Dispatcher) sendDirect(ctx context.Context, c *domain.ExecutionCandidate, blockhash string) (*Submission, error) {
	sig, encoded, err := sign(c, blockhash)
	if err != nil {
		return nil, err
	}

	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	noRetries := uint(0)
	start := time.Now()
	_, err = d.rpc.SendTransaction(ctx, encoded, solana.SendOptions{
		SkipPreflight: true,
		MaxRetries:    &noRetries,
	})
	observability.RecordRPCLatency("sendTransaction", time.Since(start).Seconds())
	if err != nil {
		return nil, classifySendError(err)
	}

	observability.RecordDispatch(domain.RouteDirect.String())
	return &Submission{
		Signature: sig,
		Route:     domain.RouteDirect,
		Blockhash: blockhash,
		SentAt:    time.Now(),
	}, nil
}

func (d *Dispatcher) sendBundle(ctx context.Context, c *domain.ExecutionCandidate, blockhash string) (*Submission, error) {
	factor := 1.0
	if d.congestion != nil {
		factor = d.congestion.Factor()
	}
	tip := d.tips.Tip(c.Urgency, factor)
	tipIx := system.NewTransferInstruction(tip, c.Skeleton.Payer, d.tipAccount).Build()

	sig, encoded, err := sign(c, blockhash, tipIx)
	if err != nil {
		return nil, err
	}

	relayCtx := ctx
	if d.cfg.RelayTimeout > 0 {
		var cancel context.CancelFunc
		relayCtx, cancel = context.WithTimeout(ctx, d.cfg.RelayTimeout)
		defer cancel()
	}

	start := time.Now()
	bundleID, err := d.relay.SendBundle(relayCtx, []string{encoded})
	observability.RecordRPCLatency("sendBundle", time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrRelayUnavailable, err)
	}

	observability.RecordDispatch(domain.RouteBundle.String())
	observability.RecordTip(tip)
	return &Submission{
		Signature:   sig,
		Route:       domain.RouteBundle,
		BundleID:    bundleID,
		TipLamports: tip,
		Blockhash:   blockhash,
		SentAt:      time.Now(),
	}, nil
}

// sign builds the transaction from the skeleton plus extra instructions and returns
// its first signature and base64 wire encoding.
func sign(c *domain.ExecutionCandidate, blockhash string, extra ...solanago.Instruction) (string, string, error) {
	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return "", "", fmt.Errorf("blockhash %q: %w", blockhash, err)
	}

	instructions := make([]solanago.Instruction, 0, len(c.Skeleton.Instructions)+len(extra))
	instructions = append(instructions, c.Skeleton.Instructions...)
	instructions = append(instructions, extra...)

	tx, err := solanago.NewTransaction(instructions, hash, solanago.TransactionPayer(c.Skeleton.Payer))
	if err != nil {
		return "", "", fmt.Errorf("%w: build transaction: %w", ErrRejected, err)
	}

	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		for i := range c.Signers {
			if c.Signers[i].PublicKey().Equals(key) {
				return &c.Signers[i]
			}
		}
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: sign: %w", ErrRejected, err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", "", fmt.Errorf("%w: encode: %w", ErrRejected, err)
	}
	return tx.Signatures[0].String(), base64.StdEncoding.EncodeToString(raw), nil
}

// Node error codes that describe the node or slot, not the transaction.
var transientCodes = map[int]bool{
	-32004: true, // block not available
	-32005: true, // node unhealthy
	-32007: true, // slot skipped
	-32009: true, // slot missing in long-term storage
	-32014: true, // block status not yet available
	-32016: true, // min context slot not reached
}

// IsTransient reports whether a send error may succeed on a later attempt.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrRejected)
}

func classifySendError(err error) error {
	var rpcErr *solana.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	if transientCodes[rpcErr.Code] || strings.Contains(strings.ToLower(rpcErr.Message), "blockhash not found") {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRejected, err)
}
