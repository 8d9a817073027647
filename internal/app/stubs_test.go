package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stablevest/settlement-engine/internal/config"
	"github.com/stablevest/settlement-engine/internal/domain"
	"github.com/stablevest/settlement-engine/internal/store"
)

// memRepo is an in-memory Repository with the same idempotency semantics as
// the PostgreSQL implementation, so sweeps can be exercised end to end.
type memRepo struct {
	intents map[uuid.UUID]*domain.PaymentIntent
	subs    map[uuid.UUID]*domain.Subscription
	ledger  []domain.LedgerTransaction
	credits map[string]domain.CreditRecord

	failCreateSubscription error
	failApplyCredit        error
	failActivate           error
}

func newMemRepo() *memRepo {
	return &memRepo{
		intents: make(map[uuid.UUID]*domain.PaymentIntent),
		subs:    make(map[uuid.UUID]*domain.Subscription),
		credits: make(map[string]domain.CreditRecord),
	}
}

func creditKey(subID uuid.UUID, day time.Time) string {
	return subID.String() + "|" + domain.CreditDay(day).Format("2006-01-02")
}

func (r *memRepo) CreatePaymentIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	cp := *intent
	r.intents[intent.ID] = &cp
	return nil
}

func (r *memRepo) ExpireOverdueIntents(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, intent := range r.intents {
		if intent.Status == domain.IntentStatusActive && !intent.ExpiresAt.After(now) {
			intent.Status = domain.IntentStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *memRepo) FindMatchingIntent(ctx context.Context, amountCents int64, transferTime time.Time, window time.Duration) (*domain.PaymentIntent, error) {
	var matches []*domain.PaymentIntent
	for _, intent := range r.intents {
		if intent.Status != domain.IntentStatusActive || intent.ExpectedAmountCents != amountCents {
			continue
		}
		if intent.CreatedAt.Before(transferTime.Add(-window)) || intent.CreatedAt.After(transferTime.Add(window)) {
			continue
		}
		matches = append(matches, intent)
	}
	if len(matches) == 0 {
		return nil, store.ErrIntentNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	cp := *matches[0]
	return &cp, nil
}

func (r *memRepo) SubscriptionExistsByFundingTx(ctx context.Context, txHash string) (bool, error) {
	for _, sub := range r.subs {
		if sub.SourceTxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) CreateFundedSubscription(ctx context.Context, sub *domain.Subscription, intentID uuid.UUID) error {
	if r.failCreateSubscription != nil {
		return r.failCreateSubscription
	}
	if exists, _ := r.SubscriptionExistsByFundingTx(ctx, sub.SourceTxHash); exists {
		return store.ErrDuplicateFundingTx
	}
	intent, ok := r.intents[intentID]
	if !ok || intent.Status != domain.IntentStatusActive {
		return store.ErrIntentNotFound
	}

	cp := *sub
	r.subs[sub.ID] = &cp
	r.ledger = append(r.ledger, domain.LedgerTransaction{
		ID:          uuid.New(),
		UserID:      sub.UserID,
		Type:        domain.TransactionTypeSubscription,
		AmountCents: sub.PrincipalCents,
		CreatedAt:   sub.StartDate,
	})
	intent.Status = domain.IntentStatusCompleted
	return nil
}

func (r *memRepo) GetPendingSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return r.subsWithStatus(domain.SubscriptionStatusPendingActivation), nil
}

func (r *memRepo) GetActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return r.subsWithStatus(domain.SubscriptionStatusActive), nil
}

func (r *memRepo) subsWithStatus(status string) []domain.Subscription {
	var out []domain.Subscription
	for _, sub := range r.subs {
		if sub.Status == status {
			out = append(out, *sub)
		}
	}
	return out
}

func (r *memRepo) ActivateSubscription(ctx context.Context, subID uuid.UUID) error {
	if r.failActivate != nil {
		return r.failActivate
	}
	sub, ok := r.subs[subID]
	if !ok || sub.Status != domain.SubscriptionStatusPendingActivation {
		return store.ErrSubscriptionNotFound
	}
	sub.Status = domain.SubscriptionStatusActive
	return nil
}

func (r *memRepo) CompleteSubscription(ctx context.Context, subID uuid.UUID) error {
	sub, ok := r.subs[subID]
	if !ok || sub.Status != domain.SubscriptionStatusActive {
		return store.ErrSubscriptionNotFound
	}
	sub.Status = domain.SubscriptionStatusCompleted
	return nil
}

func (r *memRepo) HasFundingLedgerTransaction(ctx context.Context, userID uuid.UUID, amountCents int64, since time.Time) (bool, error) {
	for _, tx := range r.ledger {
		if tx.UserID == userID && tx.Type == domain.TransactionTypeSubscription &&
			tx.AmountCents == amountCents && !tx.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) HasCreditForDate(ctx context.Context, subID uuid.UUID, creditDate time.Time) (bool, error) {
	_, ok := r.credits[creditKey(subID, creditDate)]
	return ok, nil
}

func (r *memRepo) ApplyDailyCredit(ctx context.Context, sub *domain.Subscription, creditCents int64, creditDate time.Time, now time.Time) error {
	if r.failApplyCredit != nil {
		return r.failApplyCredit
	}
	key := creditKey(sub.ID, creditDate)
	if _, ok := r.credits[key]; ok {
		return store.ErrAlreadyCredited
	}
	stored, ok := r.subs[sub.ID]
	if !ok || stored.Status != domain.SubscriptionStatusActive {
		return store.ErrSubscriptionNotFound
	}
	stored.AccruedYieldCents += creditCents
	t := now
	stored.LastCreditDate = &t
	r.ledger = append(r.ledger, domain.LedgerTransaction{
		ID:          uuid.New(),
		UserID:      sub.UserID,
		Type:        domain.TransactionTypeEarnings,
		AmountCents: creditCents,
		CreatedAt:   now,
	})
	r.credits[key] = domain.CreditRecord{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		AmountCents:    creditCents,
		CreditDate:     domain.CreditDay(creditDate),
	}
	return nil
}

// chainStub serves a fixed transfer list.
type chainStub struct {
	transfers []domain.TokenTransfer
	listErr   error
}

func (s *chainStub) ListIncomingTransfers(ctx context.Context, address string, maxAge time.Duration) ([]domain.TokenTransfer, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.transfers, nil
}

func (s *chainStub) GetTransfer(ctx context.Context, txHash string) (*domain.TokenTransfer, error) {
	for _, t := range s.transfers {
		if t.TxHash == txHash {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

// notifierStub records notified event types.
type notifierStub struct {
	events []string
}

func (s *notifierStub) Notify(ctx context.Context, userID uuid.UUID, eventType string, payload interface{}) {
	s.events = append(s.events, eventType)
}

func (s *notifierStub) count(eventType string) int {
	n := 0
	for _, e := range s.events {
		if e == eventType {
			n++
		}
	}
	return n
}

var errStubFailure = errors.New("stub failure")

const testDepositAddress = "TCustodial9xK4fGm2WqHrN8pLdYvB3sZ"

func testConfig() config.Config {
	return config.Config{
		DepositAddress:           testDepositAddress,
		AttributionWindowMinutes: 30,
		TransferLookbackHours:    24,
		ActivationDwellHours:     24,
		IntentTTLHours:           24,
		SettlementJobSchedule:    "0 0 * * *",
		CycleTimeoutMinutes:      10,
	}
}

func newTestEngine(repo store.Repository, chain ChainClient, notifier Notifier) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(repo, chain, notifier, domain.NewPlanCatalog(domain.DefaultPlans()), logger, testConfig())
}

// setEngineTime pins the engine clock.
func setEngineTime(e *Engine, t time.Time) {
	e.now = func() time.Time { return t }
}

// addIntent creates an open intent directly in the repo.
func addIntent(repo *memRepo, userID uuid.UUID, planID string, amountCents int64, createdAt time.Time) *domain.PaymentIntent {
	intent := &domain.PaymentIntent{
		ID:                  uuid.New(),
		UserID:              userID,
		PlanID:              planID,
		ExpectedAmountCents: amountCents,
		PayToAddress:        testDepositAddress,
		Status:              domain.IntentStatusActive,
		CreatedAt:           createdAt,
		ExpiresAt:           createdAt.Add(24 * time.Hour),
	}
	repo.intents[intent.ID] = intent
	return intent
}
