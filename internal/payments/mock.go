package payments

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iliamunaev/checkout-core/internal/model"
	"github.com/iliamunaev/checkout-core/internal/tax"
)

// Mock is an in-process Processor for local runs without processor
// credentials. Intents are remembered by idempotency key and accounts come
// back fully onboarded.
type Mock struct {
	// TaxBasisPoints is applied to line amounts; zero charges no tax.
	TaxBasisPoints int

	mu       sync.Mutex
	intents  map[string]Intent
	byKey    map[string]string
	accounts map[string]model.ConnectAccount
}

// NewMock returns an empty Mock.
func NewMock() *Mock {
	return &Mock{
		intents:  map[string]Intent{},
		byKey:    map[string]string{},
		accounts: map[string]model.ConnectAccount{},
	}
}

func (m *Mock) CreatePaymentIntent(_ context.Context, r IntentRequest) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[r.IdempotencyKey]; ok && r.IdempotencyKey != "" {
		return m.intents[id], nil
	}
	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Status:       "requires_payment_method",
		Amount:       r.AmountCents,
		Currency:     strings.ToLower(r.Currency),
	}
	m.intents[id] = in
	if r.IdempotencyKey != "" {
		m.byKey[r.IdempotencyKey] = id
	}
	return in, nil
}

func (m *Mock) RetrievePaymentIntent(_ context.Context, id string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok {
		return Intent{}, &APIError{Status: 404, Type: "invalid_request_error", Message: "no such payment_intent"}
	}
	return in, nil
}

func (m *Mock) CalculateTax(_ context.Context, r tax.Request) (tax.Calculation, error) {
	var taxCents int64
	for _, l := range r.Lines {
		taxCents += l.AmountCents * int64(m.TaxBasisPoints) / 10000
	}
	return tax.Calculation{ID: "taxcalc_mock_" + uuid.NewString()[:8], TaxCents: taxCents}, nil
}

func (m *Mock) RetrieveAccount(_ context.Context, accountID string) (model.ConnectAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return model.ConnectAccount{}, errors.New("payments: no such account")
	}
	return a, nil
}

func (m *Mock) CreateAccount(_ context.Context, groupID, _ string) (model.ConnectAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := model.ConnectAccount{
		AccountID:        "acct_mock_" + uuid.NewString()[:12],
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
		Metadata:         map[string]any{"sellingGroupId": groupID},
	}
	m.accounts[a.AccountID] = a
	return a, nil
}

func (m *Mock) CreateOnboardingLink(_ context.Context, accountID, _, returnURL string) (string, error) {
	return returnURL + "?account=" + accountID, nil
}
