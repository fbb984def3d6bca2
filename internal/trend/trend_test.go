package trend

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"solana-wallet-bot/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// recordingNotifier captures broadcasts for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (n *recordingNotifier) NotifyUser(userID int64, message string) error { return nil }

func (n *recordingNotifier) Broadcast(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("broadcast failed")
	}
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func trendingBody(chainID, mint, symbol string, liquidity float64) string {
	return fmt.Sprintf(`{"pairs":[{"chainId":%q,"baseToken":{"address":%q,"symbol":%q},"liquidity":{"usd":%f},"volume":{"h24":50000}}]}`,
		chainID, mint, symbol, liquidity)
}

func setupPoller(t *testing.T, handler http.HandlerFunc) (*Poller, *recordingNotifier) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Trend{
		URL:         server.URL,
		Interval:    60,
		ThrottleSec: 3600,
		MinScore:    40,
	}
	notifier := &recordingNotifier{}
	return NewPoller(cfg, notifier, zap.NewNop()), notifier
}

func TestPoll_BroadcastsTrendingToken(t *testing.T) {
	poller, notifier := setupPoller(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trending":
			fmt.Fprint(w, trendingBody("solana", "MintA", "AAA", 250000))
		case "/tokens/MintA":
			fmt.Fprint(w, trendingBody("solana", "MintA", "AAA", 250000))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	assert.NoError(t, poller.poll())
	assert.Equal(t, 1, notifier.count())
	assert.Contains(t, notifier.messages[0], "AAA")
	assert.Contains(t, notifier.messages[0], "MintA")
	assert.Contains(t, notifier.messages[0], "Score: 50/100")
}

func TestPoll_ThrottleSuppressesRepeatAlert(t *testing.T) {
	poller, notifier := setupPoller(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trendingBody("solana", "MintA", "AAA", 250000))
	})

	assert.NoError(t, poller.poll())
	assert.NoError(t, poller.poll())
	assert.Equal(t, 1, notifier.count())
}

func TestPoll_LowLiquidityFilteredOut(t *testing.T) {
	poller, notifier := setupPoller(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trendingBody("solana", "MintB", "BBB", 500))
	})

	// 50 base minus the LOW_LIQ penalty lands below the score floor.
	assert.NoError(t, poller.poll())
	assert.Equal(t, 0, notifier.count())
}

func TestPoll_IgnoresOtherChains(t *testing.T) {
	poller, notifier := setupPoller(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trendingBody("ethereum", "0xdead", "ETH", 9000000))
	})

	assert.NoError(t, poller.poll())
	assert.Equal(t, 0, notifier.count())
}

func TestPoll_FeedErrorReturned(t *testing.T) {
	poller, notifier := setupPoller(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.Error(t, poller.poll())
	assert.Equal(t, 0, notifier.count())
}

func TestPoll_FailedBroadcastRetriesNextPoll(t *testing.T) {
	poller, notifier := setupPoller(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trendingBody("solana", "MintA", "AAA", 250000))
	})

	notifier.fail = true
	assert.NoError(t, poller.poll())
	assert.Equal(t, 0, notifier.count())

	// The throttle mark is only set after a successful broadcast.
	notifier.fail = false
	assert.NoError(t, poller.poll())
	assert.Equal(t, 1, notifier.count())
}
