package creditcard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"koin/internal/core"
	"koin/internal/log"
	"koin/internal/store"
)

// Store is what the card service needs from the document store.
type Store interface {
	store.CardReader
	store.Writer
}

// Service runs the card sub-ledger operations for one store.
type Service struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func NewService(s Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{store: s, logger: logger.WithComponent(log.ComponentCreditCard), now: time.Now}
}

// Setup stores the credit line and posts the initial debt of every
// external bucket as an opening charge, in one batch.
func (s *Service) Setup(ctx context.Context, userID string, line core.CreditLine) error {
	for i := range line.Categories {
		if line.Categories[i].ID == "" {
			line.Categories[i].ID = store.NewID()
		}
		if line.Categories[i].Type == "" {
			line.Categories[i].Type = core.CardPersonal
		}
	}
	line.Setup = true
	if err := line.Validate(); err != nil {
		return err
	}

	b := store.NewBatch().PutCreditLine(line)
	now := s.now()
	for _, c := range line.Categories {
		if c.Type == core.CardExternal && c.InitialDebt.IsPositive() {
			b.PutCardCharge(openingCharge(c, now))
		}
	}
	if err := s.store.Apply(ctx, userID, b); err != nil {
		return fmt.Errorf("setup credit line: %w", err)
	}
	s.logger.InfoContext(ctx, "Credit line configured", log.FieldUserID, userID, log.FieldCount, len(line.Categories))
	return nil
}

// AddBucket adds a card category to an existing credit line.
func (s *Service) AddBucket(ctx context.Context, userID string, c core.CardCategory) (core.CardCategory, error) {
	line, err := s.store.CreditLine(ctx, userID)
	if err != nil {
		return core.CardCategory{}, fmt.Errorf("read credit line: %w", err)
	}
	if strings.TrimSpace(c.Label) == "" {
		return core.CardCategory{}, core.ErrEmptyName
	}
	if c.ID == "" {
		c.ID = store.NewID()
	}
	if c.Type == "" {
		c.Type = core.CardPersonal
	}
	if c.Type == core.CardPersonal {
		c.InitialDebt = core.Zero
	} else {
		c.Budget = core.Zero
	}
	line.Categories = append(append([]core.CardCategory(nil), line.Categories...), c)

	b := store.NewBatch().PutCreditLine(line)
	if c.Type == core.CardExternal && c.InitialDebt.IsPositive() {
		b.PutCardCharge(openingCharge(c, s.now()))
	}
	if err := s.store.Apply(ctx, userID, b); err != nil {
		return core.CardCategory{}, fmt.Errorf("add card category: %w", err)
	}
	return c, nil
}

// Post records a charge or a repayment on a known bucket.
func (s *Service) Post(ctx context.Context, userID string, ch core.CardCharge) (core.CardCharge, error) {
	if err := ch.Validate(); err != nil {
		return core.CardCharge{}, err
	}
	line, err := s.store.CreditLine(ctx, userID)
	if err != nil {
		return core.CardCharge{}, fmt.Errorf("read credit line: %w", err)
	}
	if _, ok := line.Category(ch.CategoryID); !ok {
		return core.CardCharge{}, core.ErrUnknownBucket
	}
	if ch.ID == "" {
		ch.ID = store.NewID()
	}
	if ch.PostedAt.IsZero() {
		ch.PostedAt = s.now()
	}
	if ch.Description == "" {
		ch.Description = defaultDescription(ch.Kind)
	}
	if err := s.store.Apply(ctx, userID, store.NewBatch().PutCardCharge(ch)); err != nil {
		return core.CardCharge{}, fmt.Errorf("post card charge: %w", err)
	}
	s.logger.DebugContext(ctx, "Card charge posted",
		log.FieldUserID, userID, log.FieldKind, string(ch.Kind), log.FieldAmount, ch.Amount.String())
	return ch, nil
}

// Summary loads the sub-ledger of userID and summarizes it.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	line, err := s.store.CreditLine(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("read credit line: %w", err)
	}
	charges, err := s.store.CardCharges(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("read card charges: %w", err)
	}
	return Summarize(line, charges, s.now()), nil
}

func openingCharge(c core.CardCategory, now time.Time) core.CardCharge {
	return core.CardCharge{
		ID:          store.NewID(),
		CategoryID:  c.ID,
		Amount:      c.InitialDebt,
		Kind:        core.ChargePurchase,
		Description: "Opening balance",
		PostedAt:    now,
	}
}

func defaultDescription(k core.ChargeKind) string {
	if k == core.ChargeRepayment {
		return "Repayment received"
	}
	return "Card purchase"
}
