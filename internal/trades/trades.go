package trades

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/ksred/minimarbles/internal/metrics"
	"github.com/ksred/minimarbles/internal/types"
	"github.com/ksred/minimarbles/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrSameParty      = fmt.Errorf("%w: a trade needs two distinct parties", types.ErrValidation)
	ErrMissingParty   = fmt.Errorf("%w: both party ids are required", types.ErrValidation)
	ErrNegativeStake  = fmt.Errorf("%w: stakes must not be negative", types.ErrValidation)
	ErrInvalidLotSize = fmt.Errorf("%w: lot_size must be positive", types.ErrValidation)
	ErrPartyNotFound  = fmt.Errorf("%w: party", types.ErrNotFound)
	ErrTradeNotFound  = fmt.Errorf("%w: trade", types.ErrNotFound)
)

// BinaryTradeRequest carries the caller-supplied fields of a new binary trade
type BinaryTradeRequest struct {
	PartyAID    string `json:"party_a_id"`
	PartyBID    string `json:"party_b_id"`
	StakeA      int64  `json:"stake_a"`
	StakeB      int64  `json:"stake_b"`
	Description string `json:"description"`
}

// UnderlyingTradeRequest carries the caller-supplied fields of a new underlying trade
type UnderlyingTradeRequest struct {
	LongPartyID  string           `json:"long_party_id"`
	ShortPartyID string           `json:"short_party_id"`
	LotSize      *decimal.Decimal `json:"lot_size"`
	TradePrice   *decimal.Decimal `json:"trade_price"`
	Description  string           `json:"description"`
}

// Service opens trades and lists them
type Service struct {
	db *Database
}

// NewService creates a new trade service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateBinaryTrade opens a binary trade between two existing, distinct users.
// The trade always starts open with no outcome.
func (s *Service) CreateBinaryTrade(req BinaryTradeRequest) (*types.BinaryTrade, error) {
	if err := s.checkParties(req.PartyAID, req.PartyBID); err != nil {
		return nil, err
	}
	if req.StakeA < 0 || req.StakeB < 0 {
		return nil, ErrNegativeStake
	}

	trade := &types.BinaryTrade{
		PartyAID:    req.PartyAID,
		PartyBID:    req.PartyBID,
		StakeA:      req.StakeA,
		StakeB:      req.StakeB,
		Description: req.Description,
		Status:      types.StatusOpen,
	}
	if err := s.db.CreateBinaryTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to create binary trade: %w", err)
	}

	metrics.TradesOpened.WithLabelValues(types.KindBinary).Inc()
	log.Info().
		Str("service", "trades").
		Str("trade_id", trade.ID).
		Str("party_a_id", trade.PartyAID).
		Str("party_b_id", trade.PartyBID).
		Int64("stake_a", trade.StakeA).
		Int64("stake_b", trade.StakeB).
		Msg("binary trade opened")

	return trade, nil
}

// CreateUnderlyingTrade opens a linear position between two existing, distinct users.
// The trade always starts open with no settlement price.
func (s *Service) CreateUnderlyingTrade(req UnderlyingTradeRequest) (*types.UnderlyingTrade, error) {
	if req.LotSize == nil || !req.LotSize.IsPositive() {
		return nil, ErrInvalidLotSize
	}
	if req.TradePrice == nil {
		return nil, fmt.Errorf("%w: trade_price is required", types.ErrValidation)
	}
	if err := s.checkParties(req.LongPartyID, req.ShortPartyID); err != nil {
		return nil, err
	}

	trade := &types.UnderlyingTrade{
		LongPartyID:  req.LongPartyID,
		ShortPartyID: req.ShortPartyID,
		LotSize:      *req.LotSize,
		TradePrice:   *req.TradePrice,
		Description:  req.Description,
		Status:       types.StatusOpen,
	}
	if err := s.db.CreateUnderlyingTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to create underlying trade: %w", err)
	}

	metrics.TradesOpened.WithLabelValues(types.KindUnderlying).Inc()
	log.Info().
		Str("service", "trades").
		Str("trade_id", trade.ID).
		Str("long_party_id", trade.LongPartyID).
		Str("short_party_id", trade.ShortPartyID).
		Str("lot_size", trade.LotSize.String()).
		Str("trade_price", trade.TradePrice.String()).
		Msg("underlying trade opened")

	return trade, nil
}

// checkParties validates that both ids are set, differ, and name existing users
func (s *Service) checkParties(first, second string) error {
	if first == "" || second == "" {
		return ErrMissingParty
	}
	if first == second {
		return ErrSameParty
	}

	names, err := s.db.UserNames([]string{first, second})
	if err != nil {
		return err
	}
	for _, id := range []string{first, second} {
		if _, ok := names[id]; !ok {
			return fmt.Errorf("%w: %s", ErrPartyNotFound, id)
		}
	}
	return nil
}

// GetBinaryTrade retrieves a binary trade by id
func (s *Service) GetBinaryTrade(tradeID string) (*types.BinaryTrade, error) {
	trade, err := s.db.GetBinaryTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	return trade, nil
}

// GetUnderlyingTrade retrieves an underlying trade by id
func (s *Service) GetUnderlyingTrade(tradeID string) (*types.UnderlyingTrade, error) {
	trade, err := s.db.GetUnderlyingTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	return trade, nil
}

// ListTrades returns every binary trade followed by every underlying trade, each
// group oldest first, with party ids resolved to names
func (s *Service) ListTrades() ([]types.TradeSummary, error) {
	binary, err := s.db.ListBinaryTrades()
	if err != nil {
		return nil, err
	}
	underlying, err := s.db.ListUnderlyingTrades()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, 2*(len(binary)+len(underlying)))
	for _, t := range binary {
		ids = append(ids, t.PartyAID, t.PartyBID)
	}
	for _, t := range underlying {
		ids = append(ids, t.LongPartyID, t.ShortPartyID)
	}
	names, err := s.db.UserNames(ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]types.TradeSummary, 0, len(binary)+len(underlying))
	for _, t := range binary {
		summaries = append(summaries, types.NewBinarySummary(t, names[t.PartyAID], names[t.PartyBID]))
	}
	for _, t := range underlying {
		summaries = append(summaries, types.NewUnderlyingSummary(t, names[t.LongPartyID], names[t.ShortPartyID]))
	}
	return summaries, nil
}

// GinHandlers contains HTTP handlers for trade endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trade endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListTradesHandler handles GET /trades
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := h.service.ListTrades()
		response.Handle(c, summaries, err)
	}
}

// CreateBinaryTradeHandler handles POST /trades/binary.
// Status and outcome in the body are ignored.
func (h *GinHandlers) CreateBinaryTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request BinaryTradeRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CreateBinaryTrade(request)
		response.Handle(c, trade, err)
	}
}

// CreateUnderlyingTradeHandler handles POST /trades/underlying.
// Status and settlement price in the body are ignored.
func (h *GinHandlers) CreateUnderlyingTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request UnderlyingTradeRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CreateUnderlyingTrade(request)
		response.Handle(c, trade, err)
	}
}

// GetBinaryTradeHandler handles GET /trades/binary/:trade_id
func (h *GinHandlers) GetBinaryTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.GetBinaryTrade(c.Param("trade_id"))
		response.Handle(c, trade, err)
	}
}

// GetUnderlyingTradeHandler handles GET /trades/underlying/:trade_id
func (h *GinHandlers) GetUnderlyingTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.GetUnderlyingTrade(c.Param("trade_id"))
		response.Handle(c, trade, err)
	}
}
