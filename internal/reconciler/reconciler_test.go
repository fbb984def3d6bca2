package reconciler

import (
	"errors"
	"testing"

	"solana-wallet-bot/internal/config"
	"solana-wallet-bot/internal/locker"
	"solana-wallet-bot/internal/models"
	"solana-wallet-bot/internal/notify"
	"solana-wallet-bot/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testMint = "USDTmint"

// MockRPC is a mock implementation of the solana.RPCInterface.
type MockRPC struct {
	mock.Mock
}

func (m *MockRPC) GetNativeBalance(address string) (decimal.Decimal, error) {
	args := m.Called(address)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRPC) GetTokenBalance(address, mint string) (decimal.Decimal, error) {
	args := m.Called(address, mint)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRPC) GetLatestBlockhash() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockRPC) SendTransaction(signed []byte) (string, error) {
	args := m.Called(signed)
	return args.String(0), args.Error(1)
}

// MockFeed is a mock implementation of the pricefeed.FeedInterface.
type MockFeed struct {
	mock.Mock
}

func (m *MockFeed) GetNativePriceUSD() (decimal.Decimal, error) {
	args := m.Called()
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// setupTest creates a reconciler over a fresh in-memory ledger with one
// account for user 1.
func setupTest(t *testing.T) (*Reconciler, *store.Ledger, *MockRPC, *MockFeed) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	err = db.AutoMigrate(&models.Account{}, &models.DepositSnapshot{}, &models.Trade{})
	assert.NoError(t, err)

	ledger := store.NewLedger(db, 30)
	_, _, err = ledger.CreateAccountIfRoom(1, "alice", "pub1", "sealed1")
	assert.NoError(t, err)

	rpc := new(MockRPC)
	feed := new(MockFeed)
	cfg := &config.Ledger{
		MaxAccounts:    30,
		MinDepositSOL:  0.005,
		PollInterval:   12,
		StablecoinMint: testMint,
	}
	r := NewReconciler(cfg, ledger, rpc, feed, locker.NewUserLocker(), notify.NewLogNotifier(zap.NewNop()), zap.NewNop())
	return r, ledger, rpc, feed
}

func TestCycle_NativeDepositCredited(t *testing.T) {
	r, ledger, rpc, feed := setupTest(t)

	// 2.0 SOL arrive on-chain against a zero ledger balance.
	rpc.On("GetNativeBalance", "pub1").Return(decimal.RequireFromString("2.0"), nil)
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.Zero, nil)
	feed.AssertNotCalled(t, "GetNativePriceUSD")

	assert.NoError(t, r.cycle())

	acc, err := ledger.GetAccount(1)
	assert.NoError(t, err)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("2.0")))

	trades, err := ledger.TradesForUser(1, 10)
	assert.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Equal(t, models.TradeDeposit, trades[0].Kind)
	assert.Equal(t, "SOL", trades[0].Asset)
	assert.True(t, trades[0].Amount.Equal(decimal.RequireFromString("2.0")))
}

func TestCycle_Idempotent(t *testing.T) {
	r, ledger, rpc, _ := setupTest(t)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.RequireFromString("2.0"), nil)
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.Zero, nil)

	assert.NoError(t, r.cycle())
	// Replaying with an unchanged on-chain value credits nothing.
	assert.NoError(t, r.cycle())

	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("2.0")))
	trades, _ := ledger.TradesForUser(1, 10)
	assert.Len(t, trades, 1)
}

func TestCycle_ChainUnavailableSkipsUser(t *testing.T) {
	r, ledger, rpc, _ := setupTest(t)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, errors.New("chain unavailable"))
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.Zero, errors.New("chain unavailable"))

	// A failed read is "no observable change", never "balance is zero".
	assert.NoError(t, r.cycle())

	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.IsZero())
	trades, _ := ledger.TradesForUser(1, 10)
	assert.Len(t, trades, 0)
}

func TestCycle_NativeDecreaseNotCredited(t *testing.T) {
	r, ledger, rpc, _ := setupTest(t)
	assert.NoError(t, ledger.SetBalance(1, decimal.RequireFromString("5.0")))

	// On-chain dropped below the ledger value (outbound spend in flight).
	rpc.On("GetNativeBalance", "pub1").Return(decimal.RequireFromString("3.0"), nil)
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.Zero, nil)

	assert.NoError(t, r.cycle())

	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("5.0")))
	trades, _ := ledger.TradesForUser(1, 10)
	assert.Len(t, trades, 0)
}

func TestCycle_StablecoinDepositConverted(t *testing.T) {
	r, ledger, rpc, feed := setupTest(t)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, nil)
	// 50 USDT arrive; at 100 USD/SOL that converts to 0.5 SOL.
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.RequireFromString("50"), nil)
	feed.On("GetNativePriceUSD").Return(decimal.RequireFromString("100"), nil)

	assert.NoError(t, r.cycle())

	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("0.5")))

	snap, err := ledger.GetSnapshot(1, testMint)
	assert.NoError(t, err)
	assert.True(t, snap.Equal(decimal.RequireFromString("50")))

	trades, _ := ledger.TradesForUser(1, 10)
	assert.Len(t, trades, 1)
	assert.Equal(t, testMint, trades[0].Asset)
	assert.True(t, trades[0].Amount.Equal(decimal.RequireFromString("50")))
}

func TestCycle_StablecoinCreditedOnlyOnce(t *testing.T) {
	r, ledger, rpc, feed := setupTest(t)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, nil)
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.RequireFromString("50"), nil)
	feed.On("GetNativePriceUSD").Return(decimal.RequireFromString("100"), nil)

	assert.NoError(t, r.cycle())
	// The snapshot advanced with the credit, replay credits nothing.
	assert.NoError(t, r.cycle())

	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("0.5")))
	trades, _ := ledger.TradesForUser(1, 10)
	assert.Len(t, trades, 1)
}

func TestCycle_PriceFeedDownRetainsBaseline(t *testing.T) {
	r, ledger, rpc, feed := setupTest(t)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, nil)
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.RequireFromString("50"), nil)
	feed.On("GetNativePriceUSD").Return(decimal.Zero, errors.New("feed down")).Once()

	assert.NoError(t, r.cycle())

	// Conversion failed: snapshot must not advance or the deposit is lost.
	snap, _ := ledger.GetSnapshot(1, testMint)
	assert.True(t, snap.IsZero())
	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.IsZero())

	// Feed recovers: the deposit is credited from the retained baseline.
	feed.On("GetNativePriceUSD").Return(decimal.RequireFromString("100"), nil)
	assert.NoError(t, r.cycle())
	acc, _ = ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("0.5")))
}

func TestCycle_StablecoinDustAbsorbed(t *testing.T) {
	r, ledger, rpc, feed := setupTest(t)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, nil)
	// 0.1 USDT at 100 USD/SOL is 0.001 SOL, under the 0.005 threshold.
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.RequireFromString("0.1"), nil)
	feed.On("GetNativePriceUSD").Return(decimal.RequireFromString("100"), nil)

	assert.NoError(t, r.cycle())

	// Dust is absorbed: snapshot advanced, nothing credited, no retry.
	snap, _ := ledger.GetSnapshot(1, testMint)
	assert.True(t, snap.Equal(decimal.RequireFromString("0.1")))
	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.IsZero())
	trades, _ := ledger.TradesForUser(1, 10)
	assert.Len(t, trades, 0)
}

func TestCycle_StablecoinDecreaseAdvancesSnapshot(t *testing.T) {
	r, ledger, rpc, _ := setupTest(t)
	assert.NoError(t, ledger.SetSnapshot(1, testMint, decimal.RequireFromString("80")))

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, nil)
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.RequireFromString("30"), nil)

	assert.NoError(t, r.cycle())

	// The baseline follows the decrease so a later partial refill is not
	// double-counted against the old high-water mark.
	snap, _ := ledger.GetSnapshot(1, testMint)
	assert.True(t, snap.Equal(decimal.RequireFromString("30")))
	acc, _ := ledger.GetAccount(1)
	assert.True(t, acc.BalanceSOL.IsZero())
}

func TestCycle_OneUserFailureDoesNotHaltOthers(t *testing.T) {
	r, ledger, rpc, _ := setupTest(t)
	_, _, err := ledger.CreateAccountIfRoom(2, "bob", "pub2", "sealed2")
	assert.NoError(t, err)

	rpc.On("GetNativeBalance", "pub1").Return(decimal.Zero, errors.New("chain unavailable"))
	rpc.On("GetTokenBalance", "pub1", testMint).Return(decimal.Zero, errors.New("chain unavailable"))
	rpc.On("GetNativeBalance", "pub2").Return(decimal.RequireFromString("1.0"), nil)
	rpc.On("GetTokenBalance", "pub2", testMint).Return(decimal.Zero, nil)

	assert.NoError(t, r.cycle())

	acc, _ := ledger.GetAccount(2)
	assert.True(t, acc.BalanceSOL.Equal(decimal.RequireFromString("1.0")))
}
