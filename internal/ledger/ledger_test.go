package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/dating-advisor-api/internal/model"
)

// fakeStore is an in-memory Store with the same atomicity contract as
// the SQL implementation.
type fakeStore struct {
	balances map[uint64]*model.TokenBalance
}

func newFakeStore() *fakeStore {
	return &fakeStore{balances: map[uint64]*model.TokenBalance{}}
}

func (f *fakeStore) get(userID uint64) *model.TokenBalance {
	if t, ok := f.balances[userID]; ok {
		return t
	}
	t := &model.TokenBalance{UserID: userID}
	f.balances[userID] = t
	return t
}

func (f *fakeStore) GetOrCreate(_ context.Context, userID uint64) (model.TokenBalance, error) {
	return *f.get(userID), nil
}

func (f *fakeStore) UseFreePrompt(_ context.Context, userID uint64, limit int) (int, bool, error) {
	t := f.get(userID)
	if t.FreePromptsUsed >= limit {
		return t.FreePromptsUsed, false, nil
	}
	t.FreePromptsUsed++
	return t.FreePromptsUsed, true, nil
}

func (f *fakeStore) DebitTokens(_ context.Context, userID uint64, cost int64) (int64, bool, error) {
	t := f.get(userID)
	if t.Balance < cost {
		return t.Balance, false, nil
	}
	t.Balance -= cost
	t.TotalUsed += cost
	return t.Balance, true, nil
}

func (f *fakeStore) CreditTokens(_ context.Context, userID uint64, amount int64) (int64, error) {
	t := f.get(userID)
	t.Balance += amount
	t.TotalPurchased += amount
	return t.Balance, nil
}

type recordingLog struct {
	entries []model.TokenTransaction
}

func (l *recordingLog) Record(_ context.Context, tx model.TokenTransaction) error {
	l.entries = append(l.entries, tx)
	return nil
}

func TestDebitForMessageFreePrompts(t *testing.T) {
	store := newFakeStore()
	log := &recordingLog{}
	svc := New(store, log)
	ctx := context.Background()

	for i := 1; i <= FreePromptLimit; i++ {
		res, err := svc.DebitForMessage(ctx, 7)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.True(t, res.FreePrompt)
		assert.Equal(t, FreePromptLimit-i, res.RemainingFree)
	}

	// Fourth send has no free prompts and no balance.
	res, err := svc.DebitForMessage(ctx, 7)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.False(t, res.FreePrompt)

	// Free prompts never touch the balance and record zero-amount
	// usage entries so the transaction sum still reconciles.
	bal, err := svc.GetBalance(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 0, bal.Balance)
	require.Len(t, log.entries, FreePromptLimit)
	for _, e := range log.entries {
		assert.EqualValues(t, 0, e.Amount)
		assert.Equal(t, model.TxUsage, e.Type)
	}
}

func TestDebitForMessageConsumesTokens(t *testing.T) {
	store := newFakeStore()
	log := &recordingLog{}
	svc := New(store, log)
	ctx := context.Background()

	store.get(9).FreePromptsUsed = FreePromptLimit
	_, err := store.CreditTokens(ctx, 9, 2)
	require.NoError(t, err)

	res, err := svc.DebitForMessage(ctx, 9)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, res.FreePrompt)
	assert.EqualValues(t, 1, res.Balance)

	res, err = svc.DebitForMessage(ctx, 9)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.EqualValues(t, 0, res.Balance)

	// Exhausted: rejected without moving counters or logging.
	logged := len(log.entries)
	res, err = svc.DebitForMessage(ctx, 9)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Len(t, log.entries, logged)

	// balance == purchased - used
	bal, err := svc.GetBalance(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, bal.TotalPurchased-bal.TotalUsed, bal.Balance)
}

func TestCanSendIsPureRead(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &recordingLog{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		elig, err := svc.CanSend(ctx, 3)
		require.NoError(t, err)
		assert.True(t, elig.Allowed)
		assert.True(t, elig.FreePrompt)
		assert.Equal(t, FreePromptLimit, elig.RemainingFree)
	}
}

func TestCreditFromPurchaseFloorsTokens(t *testing.T) {
	cases := []struct {
		amountCents int64
		tokens      int64
	}{
		{1000, 100},
		{150, 15},
		{99, 9},
		{5, 0},
	}
	for _, tc := range cases {
		store := newFakeStore()
		log := &recordingLog{}
		svc := New(store, log)

		res, err := svc.CreditFromPurchase(context.Background(), 4, tc.amountCents)
		require.NoError(t, err)
		assert.Equal(t, tc.tokens, res.TokensAdded, "amount %d cents", tc.amountCents)
		assert.Equal(t, tc.tokens, res.NewBalance)

		require.Len(t, log.entries, 1)
		assert.Equal(t, model.TxPurchase, log.entries[0].Type)
		assert.Equal(t, tc.tokens, log.entries[0].Amount)
		require.NotNil(t, log.entries[0].Metadata)
	}
}
