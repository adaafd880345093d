package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
)

var hundred = decimal.NewFromInt(100)

// SnapshotSource fetches the snapshot of a single contract.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, underlying, optionTicker string) (*models.Snapshot, error)
}

// SnapshotMap is an in-memory SnapshotSource keyed by option ticker.
type SnapshotMap map[string]*models.Snapshot

// GetSnapshot implements SnapshotSource.
func (m SnapshotMap) GetSnapshot(_ context.Context, underlying, optionTicker string) (*models.Snapshot, error) {
	if s, ok := m[optionTicker]; ok && s != nil {
		return s, nil
	}
	return nil, apperrors.NoData("snapshot", optionTicker, "not in snapshot set")
}

// MatcherConfig holds the tunables of the spread matcher.
type MatcherConfig struct {
	DeltaRanges          options.DeltaRanges
	MaxStrikes           int
	MinRelativeDelta     decimal.Decimal
	CreditFillMultiplier decimal.Decimal
	DebitFillMultiplier  decimal.Decimal
	TargetFactor         decimal.Decimal
	StopDivisor          decimal.Decimal
	MinExpectedMove      decimal.Decimal
	MinOpenInterest      int64
	MinVolume            int64
}

// DefaultMatcherConfig returns the standard matcher settings.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		DeltaRanges:          options.DefaultDeltaRanges(),
		MaxStrikes:           20,
		MinRelativeDelta:     decimal.RequireFromString("0.26"),
		CreditFillMultiplier: decimal.RequireFromString("0.95"),
		DebitFillMultiplier:  decimal.RequireFromString("1.05"),
		TargetFactor:         decimal.RequireFromString("0.8"),
		StopDivisor:          decimal.NewFromInt(2),
		MinExpectedMove:      decimal.NewFromInt(1),
		MinOpenInterest:      10,
		MinVolume:            10,
	}
}

// Chain is the market data a match runs against: one expiration's contracts
// and the underlying's previous close.
type Chain struct {
	PreviousClose decimal.Decimal
	Contracts     []models.Contract
	// Snapshots optionally pre-supplies snapshots; missing ones are fetched
	// from the matcher's SnapshotSource.
	Snapshots map[string]*models.Snapshot
	// Today anchors days-to-expiration. Zero means now.
	Today time.Time
}

// VerticalSpread matches a two-leg vertical spread out of an option chain.
type VerticalSpread struct {
	selector  ContractSelector
	snapshots SnapshotSource
	cfg       MatcherConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewVerticalSpread creates a matcher. snapshots may be nil when every chain
// carries its own snapshots.
func NewVerticalSpread(selector ContractSelector, snapshots SnapshotSource, cfg MatcherConfig, logger zerolog.Logger) *VerticalSpread {
	if cfg.MaxStrikes <= 0 {
		cfg.MaxStrikes = DefaultMatcherConfig().MaxStrikes
	}
	if cfg.DeltaRanges == nil {
		cfg.DeltaRanges = options.DefaultDeltaRanges()
	}
	return &VerticalSpread{
		selector:  selector,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger.With().Str("component", "matcher").Logger(),
		now:       time.Now,
	}
}

// leg is a priced contract picked by one of the passes.
type leg struct {
	contract *models.Contract
	snapshot *models.Snapshot
	premium  decimal.Decimal
}

// Match fills spread with the first valid spread found in chain and reports
// whether one was found. Failing to find a spread is not an error; errors
// are returned only for invalid input or cancellation. A second-leg pass
// aborted by an expiration mismatch leaves the first leg assigned.
func (v *VerticalSpread) Match(ctx context.Context, spread *models.Spread, chain Chain) (bool, error) {
	if spread == nil {
		return false, apperrors.NewValidationError("spread", nil, "spread is required")
	}
	contractType, ok := options.ContractTypeFor(spread.Strategy, spread.Direction)
	if !ok {
		return false, apperrors.Wrapf(apperrors.ErrUnknownStrategy, "%s/%s", spread.Strategy, spread.Direction)
	}
	order, _ := options.RequestOrderFor(spread.Strategy, spread.Direction)
	searchOp, _ := options.SearchOpFor(spread.Strategy, spread.Direction)
	if !chain.PreviousClose.IsPositive() {
		return false, apperrors.NewValidationError("previous_close", chain.PreviousClose, "must be positive")
	}

	today := chain.Today
	if today.IsZero() {
		today = v.now()
	}

	log := v.logger.With().
		Str("ticker", spread.UnderlyingTicker).
		Str("strategy", string(spread.Strategy)).
		Str("direction", string(spread.Direction)).
		Logger()

	spread.ContractType = contractType
	spread.PreviousClose = chain.PreviousClose
	spread.UpdateDate = today
	v.resetLegs(spread)

	req := SelectionRequest{
		Contracts:    chain.Contracts,
		Snapshots:    chain.Snapshots,
		Underlying:   spread.UnderlyingTicker,
		Role:         options.RoleDirectional,
		Strategy:     spread.Strategy,
		Direction:    spread.Direction,
		CurrentPrice: chain.PreviousClose,
	}
	firstCandidates := v.selector.SelectContracts(req)
	sortCandidates(firstCandidates, order)

	multiplier := v.fillMultiplier(spread.Strategy)
	directional := v.cfg.DeltaRanges.For(options.RoleDirectional)

	var first *leg
	for _, c := range firstCandidates {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !searchOp(chain.PreviousClose, c.Contract.StrikePrice) {
			continue
		}
		snap, err := v.resolveSnapshot(ctx, spread.UnderlyingTicker, c)
		if err != nil {
			log.Debug().Err(err).Str("contract", c.Contract.Ticker).Msg("Skipping first leg candidate")
			continue
		}
		if !directional.Contains(snap.Greeks.Delta) {
			continue
		}
		first = &leg{
			contract: c.Contract,
			snapshot: snap,
			premium:  snap.Premium().Mul(multiplier).Round(5),
		}
		break
	}
	if first == nil {
		spread.Description = fmt.Sprintf("No match for %s", spread.UnderlyingTicker)
		log.Debug().Msg("No first leg found")
		return false, nil
	}
	v.assignLeg(spread, first, options.FirstLegIsShort(spread.Strategy))

	req.Role = options.RoleHighProbability
	secondCandidates := v.selector.SelectContracts(req)
	sortCandidates(secondCandidates, order)

	highProbability := v.cfg.DeltaRanges.For(options.RoleHighProbability)
	dte := options.DaysBetween(today, first.contract.ExpirationDate)

	var second *leg
	scanned := 0
	for _, c := range secondCandidates {
		if scanned >= v.cfg.MaxStrikes {
			break
		}
		if !beyond(c.Contract.StrikePrice, first.contract.StrikePrice, order) {
			continue
		}
		scanned++

		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !c.Contract.SameExpiration(first.contract) {
			log.Warn().
				Str("first_leg", first.contract.Ticker).
				Str("candidate", c.Contract.Ticker).
				Msg("Expiration mismatch in second leg pass, aborting match")
			spread.Matched = false
			spread.Description = fmt.Sprintf("No match for %s", spread.UnderlyingTicker)
			return false, nil
		}
		snap, err := v.resolveSnapshot(ctx, spread.UnderlyingTicker, c)
		if err != nil {
			log.Debug().Err(err).Str("contract", c.Contract.Ticker).Msg("Skipping second leg candidate")
			continue
		}

		move := options.ExpectedMove(chain.PreviousClose, snap.ImpliedVolatility, dte)
		if move.LessThanOrEqual(v.cfg.MinExpectedMove) {
			log.Debug().Str("contract", c.Contract.Ticker).Str("expected_move", move.String()).Msg("Expected move too small")
			continue
		}

		premium := snap.Premium().Mul(multiplier).Round(5)
		distance := c.Contract.StrikePrice.Sub(first.contract.StrikePrice).Abs()
		premiumDelta := first.premium.Sub(premium).Abs()
		if distance.IsZero() || premiumDelta.IsZero() {
			log.Debug().Str("contract", c.Contract.Ticker).Msg("Zero strike distance or premium delta")
			continue
		}
		relativeDelta := RelativeDelta(first.premium, premium, distance)
		if relativeDelta.LessThan(v.cfg.MinRelativeDelta) {
			log.Debug().Str("contract", c.Contract.Ticker).Str("relative_delta", relativeDelta.String()).Msg("Relative delta below minimum")
			continue
		}
		if !highProbability.Contains(snap.Greeks.Delta) {
			continue
		}

		second = &leg{contract: c.Contract, snapshot: snap, premium: premium}
		break
	}
	if second == nil {
		v.resetLegs(spread)
		spread.Description = fmt.Sprintf("No match for %s", spread.UnderlyingTicker)
		log.Debug().Str("first_leg", first.contract.Ticker).Msg("No second leg found")
		return false, nil
	}
	v.assignLeg(spread, second, !options.FirstLegIsShort(spread.Strategy))

	v.price(spread, first, second, today, dte)
	log.Info().
		Str("short", spread.ShortContract.Ticker).
		Str("long", spread.LongContract.Ticker).
		Str("net_premium", spread.NetPremium.StringFixed(2)).
		Str("max_reward", spread.MaxReward.StringFixed(2)).
		Str("max_risk", spread.MaxRisk.StringFixed(2)).
		Msg("Spread matched")
	return true, nil
}

// RelativeDelta is the premium captured per point of strike width:
// |first - second| / distance.
func RelativeDelta(first, second, distance decimal.Decimal) decimal.Decimal {
	if distance.IsZero() {
		return decimal.Zero
	}
	return first.Sub(second).Abs().Div(distance.Abs()).Round(5)
}

func (v *VerticalSpread) fillMultiplier(strategy models.StrategyType) decimal.Decimal {
	if strategy == models.StrategyCredit {
		return v.cfg.CreditFillMultiplier
	}
	return v.cfg.DebitFillMultiplier
}

func (v *VerticalSpread) resolveSnapshot(ctx context.Context, underlying string, c Candidate) (*models.Snapshot, error) {
	snap := c.Snapshot
	if snap == nil {
		if v.snapshots == nil {
			return nil, apperrors.NoData("snapshot", c.Contract.Ticker, "no snapshot supplied")
		}
		var err error
		snap, err = v.snapshots.GetSnapshot(ctx, underlying, c.Contract.Ticker)
		if err != nil {
			return nil, err
		}
	}
	if !snap.HasPricing() {
		return nil, apperrors.NoData("snapshot", c.Contract.Ticker, "missing close or delta")
	}
	return snap, nil
}

func (v *VerticalSpread) resetLegs(spread *models.Spread) {
	spread.ShortContract = nil
	spread.LongContract = nil
	spread.ShortPremium = decimal.Zero
	spread.LongPremium = decimal.Zero
	spread.Matched = false
}

func (v *VerticalSpread) assignLeg(spread *models.Spread, l *leg, short bool) {
	if short {
		spread.ShortContract = l.contract
		spread.ShortPremium = l.premium
		spread.ShortOpenInterest = l.snapshot.OpenInterest
		spread.ShortVolume = l.snapshot.Day.Volume
		return
	}
	spread.LongContract = l.contract
	spread.LongPremium = l.premium
	spread.LongOpenInterest = l.snapshot.OpenInterest
	spread.LongVolume = l.snapshot.Day.Volume
}

// price computes every derived field of a matched spread.
func (v *VerticalSpread) price(spread *models.Spread, first, second *leg, today time.Time, dte int) {
	shares := spread.Multiplier()
	sign := options.DirectionSign(spread.Direction)

	spread.NetPremium = spread.ShortPremium.Sub(spread.LongPremium).Round(5)
	spread.DistanceBetweenLegs = spread.ShortContract.StrikePrice.Sub(spread.LongContract.StrikePrice).Abs()

	if spread.Strategy == models.StrategyCredit {
		spread.MaxReward = spread.NetPremium.Mul(shares)
		spread.MaxRisk = spread.DistanceBetweenLegs.Sub(spread.NetPremium).Mul(shares)
		spread.Breakeven = spread.ShortContract.StrikePrice.Sub(sign.Mul(spread.NetPremium))
	} else {
		spread.MaxReward = spread.DistanceBetweenLegs.Sub(spread.LongPremium).Mul(shares)
		spread.MaxRisk = spread.NetPremium.Abs().Mul(shares)
		spread.Breakeven = spread.LongContract.StrikePrice.Sub(sign.Mul(spread.NetPremium))
	}

	netAbs := spread.NetPremium.Abs()
	spread.EntryPrice = spread.PreviousClose
	spread.TargetPrice = spread.PreviousClose.Add(sign.Mul(netAbs.Mul(v.cfg.TargetFactor))).Round(5)
	spread.StopPrice = spread.PreviousClose.Sub(sign.Mul(netAbs.Div(v.cfg.StopDivisor))).Round(5)

	spread.ExpirationDate = first.contract.ExpirationDate
	spread.ExitDate = options.ExitDate(spread.ExpirationDate)
	spread.ImpliedVolatility = first.snapshot.ImpliedVolatility.Add(second.snapshot.ImpliedVolatility).Div(decimal.NewFromInt(2)).Round(5)
	spread.ProbabilityOfProfit = options.ProbabilityOfProfit(spread.Direction, spread.PreviousClose, spread.Breakeven, dte, spread.ImpliedVolatility)
	spread.Description = v.describe(spread)
	spread.Matched = true
	spread.UpdateDate = today
}

func (v *VerticalSpread) describe(spread *models.Spread) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sell %s %s, buy %s %s; ",
		spread.ShortContract.StrikePrice.StringFixed(2), spread.ShortContract.ContractType,
		spread.LongContract.StrikePrice.StringFixed(2), spread.LongContract.ContractType)

	if spread.Strategy == models.StrategyCredit {
		pct := spread.NetPremium.Div(spread.DistanceBetweenLegs).Mul(hundred)
		fmt.Fprintf(&b, "max profit as fraction of the distance between strikes %s%%.", pct.StringFixed(2))
	} else if !spread.MaxRisk.IsZero() {
		pct := spread.MaxReward.Div(spread.MaxRisk).Mul(hundred)
		fmt.Fprintf(&b, "max profit as percent of the debit %s%%.", pct.StringFixed(2))
	}

	if !options.IsStandardWidth(spread.DistanceBetweenLegs) {
		fmt.Fprintf(&b, "\nNon-standard width %s, expect wider markets.", spread.DistanceBetweenLegs.StringFixed(2))
	}
	if spread.ShortOpenInterest < v.cfg.MinOpenInterest || spread.LongOpenInterest < v.cfg.MinOpenInterest {
		fmt.Fprintf(&b, "\nOpen Interest is less than %d, careful!", v.cfg.MinOpenInterest)
	}
	if spread.ShortVolume < v.cfg.MinVolume || spread.LongVolume < v.cfg.MinVolume {
		fmt.Fprintf(&b, "\nVolume is less than %d, careful!", v.cfg.MinVolume)
	}
	return b.String()
}
