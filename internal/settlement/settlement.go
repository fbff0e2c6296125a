package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/minimarbles/internal/metrics"
	"github.com/ksred/minimarbles/internal/payout"
	"github.com/ksred/minimarbles/internal/types"
	"github.com/ksred/minimarbles/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTradeNotFound    = fmt.Errorf("%w: trade", types.ErrNotFound)
	ErrAlreadySettled   = fmt.Errorf("%w: trade is already settled", types.ErrInvalidState)
	ErrPartyMissing     = fmt.Errorf("%w: trade party does not exist", types.ErrInvalidState)
	ErrSameParty        = fmt.Errorf("%w: trade parties are the same user", types.ErrInvalidState)
	ErrPayoutOutOfRange = fmt.Errorf("%w: payout does not fit in minimarbles", types.ErrInvalidState)
	ErrBalanceOverflow  = fmt.Errorf("%w: payout would overflow a party balance", types.ErrInvalidState)
)

// Service settles open trades, moving minimarbles between the two counterparties
type Service struct {
	db  *Database
	now func() time.Time
}

// NewService creates a new settlement service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		now: time.Now,
	}
}

// SettleBinaryTrade resolves a binary trade with the given outcome. Both balance
// updates and the status change commit together or not at all.
func (s *Service) SettleBinaryTrade(tradeID string, outcome bool) (*types.BinaryTrade, error) {
	logger := log.With().
		Str("trade_id", tradeID).
		Str("kind", types.KindBinary).
		Str("service", "settlement").
		Logger()

	var (
		settled        *types.BinaryTrade
		deltaA, deltaB int64
	)
	err := s.db.Transaction(func(tx *Database) error {
		trade, err := tx.GetBinaryTrade(tradeID)
		if err != nil {
			return err
		}
		if trade.Status != types.StatusOpen {
			return ErrAlreadySettled
		}
		partyA, partyB, err := checkParties(tx, trade.PartyAID, trade.PartyBID)
		if err != nil {
			return err
		}

		deltaA, deltaB = payout.Binary(trade.StakeA, trade.StakeB, outcome)
		if err := checkBalances(partyA, deltaA, partyB, deltaB); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := tx.MarkBinarySettled(trade.ID, outcome, at); err != nil {
			return err
		}
		if err := tx.AdjustBalance(partyA.ID, deltaA); err != nil {
			return err
		}
		if err := tx.AdjustBalance(partyB.ID, deltaB); err != nil {
			return err
		}

		trade.Outcome = &outcome
		trade.Status = types.StatusSettled
		trade.SettledAt = &at
		trade.UpdatedAt = at
		settled = trade
		return nil
	})
	if err != nil {
		return nil, s.fail(logger, types.KindBinary, err)
	}

	logger.Info().
		Bool("outcome", outcome).
		Int64("delta_a", deltaA).
		Int64("delta_b", deltaB).
		Msg("binary trade settled")
	recordSettled(types.KindBinary, deltaA)
	return settled, nil
}

// SettleUnderlyingTrade resolves an underlying trade at the given price. The PnL is
// computed exactly and rounded to whole minimarbles; the short side receives the
// exact negation of the long side.
func (s *Service) SettleUnderlyingTrade(tradeID string, settlementPrice decimal.Decimal) (*types.UnderlyingTrade, error) {
	logger := log.With().
		Str("trade_id", tradeID).
		Str("kind", types.KindUnderlying).
		Str("service", "settlement").
		Logger()

	var (
		settled               *types.UnderlyingTrade
		deltaLong, deltaShort int64
	)
	err := s.db.Transaction(func(tx *Database) error {
		trade, err := tx.GetUnderlyingTrade(tradeID)
		if err != nil {
			return err
		}
		if trade.Status != types.StatusOpen {
			return ErrAlreadySettled
		}
		long, short, err := checkParties(tx, trade.LongPartyID, trade.ShortPartyID)
		if err != nil {
			return err
		}

		var ok bool
		deltaLong, deltaShort, ok = payout.UnderlyingMinimarbles(trade.LotSize, trade.TradePrice, settlementPrice)
		if !ok {
			return ErrPayoutOutOfRange
		}
		if err := checkBalances(long, deltaLong, short, deltaShort); err != nil {
			return err
		}

		at := s.now().UTC()
		if err := tx.MarkUnderlyingSettled(trade.ID, settlementPrice, at); err != nil {
			return err
		}
		if err := tx.AdjustBalance(long.ID, deltaLong); err != nil {
			return err
		}
		if err := tx.AdjustBalance(short.ID, deltaShort); err != nil {
			return err
		}

		trade.SettlementPrice = &settlementPrice
		trade.Status = types.StatusSettled
		trade.SettledAt = &at
		trade.UpdatedAt = at
		settled = trade
		return nil
	})
	if err != nil {
		return nil, s.fail(logger, types.KindUnderlying, err)
	}

	logger.Info().
		Str("settlement_price", settlementPrice.String()).
		Int64("delta_long", deltaLong).
		Int64("delta_short", deltaShort).
		Msg("underlying trade settled")
	recordSettled(types.KindUnderlying, deltaLong)
	return settled, nil
}

// checkParties loads both counterparties, rejecting trades whose parties are
// missing or identical
func checkParties(tx *Database, first, second string) (*types.User, *types.User, error) {
	if first == second {
		return nil, nil, ErrSameParty
	}
	a, err := tx.GetParty(first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.GetParty(second)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// checkBalances rejects deltas that would push either balance outside int64
func checkBalances(a *types.User, deltaA int64, b *types.User, deltaB int64) error {
	if _, ok := payout.Apply(a.Balance, deltaA); !ok {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, a.ID)
	}
	if _, ok := payout.Apply(b.Balance, deltaB); !ok {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, b.ID)
	}
	return nil
}

func (s *Service) fail(logger zerolog.Logger, kind string, err error) error {
	switch {
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrInvalidState):
		metrics.Settlements.WithLabelValues(kind, metrics.ResultRejected).Inc()
		logger.Warn().Err(err).Msg("settlement rejected")
		return err
	default:
		metrics.Settlements.WithLabelValues(kind, metrics.ResultFailed).Inc()
		logger.Error().Err(err).Msg("settlement failed")
		return fmt.Errorf("failed to settle trade: %w", err)
	}
}

// recordSettled counts a successful settlement; delta is either side's balance change
func recordSettled(kind string, delta int64) {
	if delta < 0 {
		delta = -delta
	}
	metrics.Settlements.WithLabelValues(kind, metrics.ResultSettled).Inc()
	metrics.Transferred.WithLabelValues(kind).Add(float64(delta))
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type settleBinaryRequest struct {
	Outcome *bool `json:"outcome"`
}

type settleUnderlyingRequest struct {
	SettlementPrice *decimal.Decimal `json:"settlement_price"`
}

// SettleBinaryTradeHandler handles POST /trades/binary/:trade_id/settle
func (h *GinHandlers) SettleBinaryTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request settleBinaryRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.Outcome == nil {
			response.ValidationFailed(c, "outcome is required")
			return
		}

		trade, err := h.service.SettleBinaryTrade(c.Param("trade_id"), *request.Outcome)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, trade)
	}
}

// SettleUnderlyingTradeHandler handles POST /trades/underlying/:trade_id/settle
func (h *GinHandlers) SettleUnderlyingTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request settleUnderlyingRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.SettlementPrice == nil {
			response.ValidationFailed(c, "settlement_price is required")
			return
		}

		trade, err := h.service.SettleUnderlyingTrade(c.Param("trade_id"), *request.SettlementPrice)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.OK(c, trade)
	}
}
