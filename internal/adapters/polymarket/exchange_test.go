package polymarket_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

type postedOrder struct {
	Order struct {
		MakerAmount string `json:"makerAmount"`
		TakerAmount string `json:"takerAmount"`
		Side        string `json:"side"`
		TokenID     string `json:"tokenId"`
		Signature   string `json:"signature"`
	} `json:"order"`
	Owner     string `json:"owner"`
	OrderType string `json:"orderType"`
}

// fakeCLOB sirve derive-api-key, neg-risk y order, y guarda las órdenes recibidas.
type fakeCLOB struct {
	mu       sync.Mutex
	orders   []postedOrder
	apiKeys  []string
	derives  int
	negRisks int
	response string
}

func (f *fakeCLOB) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/auth/derive-api-key":
			f.derives++
			assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
			w.Write([]byte(`{"apiKey":"key-1","secret":"c2VjcmV0","passphrase":"pass"}`))
		case "/neg-risk":
			f.negRisks++
			w.Write([]byte(`{"neg_risk":false}`))
		case "/order":
			var o postedOrder
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&o))
			f.orders = append(f.orders, o)
			f.apiKeys = append(f.apiKeys, r.Header.Get("POLY_API_KEY"))
			w.Write([]byte(f.response))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}
}

func (f *fakeCLOB) posted() ([]postedOrder, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedOrder(nil), f.orders...), append([]string(nil), f.apiKeys...)
}

func (f *fakeCLOB) counts() (derives, negRisks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.derives, f.negRisks
}

func newLiveExchange(t *testing.T, f *fakeCLOB) *polymarket.Exchange {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client := polymarket.NewClient(srv.URL, srv.URL)
	auth, err := polymarket.NewAuthClient(client, hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	trading, err := polymarket.NewTradingClient(auth, "")
	require.NoError(t, err)
	return polymarket.NewExchange(client, trading)
}

func TestExchange_BuyPlacesRestingOrder(t *testing.T) {
	f := &fakeCLOB{response: `{"success":true,"orderID":"0xorder1","status":"matched","takingAmount":"10300000","makingAmount":"9991000"}`}
	ex := newLiveExchange(t, f)

	res, err := ex.Buy(context.Background(), "123456", 0.97, 10)
	require.NoError(t, err)
	assert.Equal(t, "0xorder1", res.OrderID)
	assert.InDelta(t, 10.30, res.FilledShares, 1e-9)

	orders, keys := f.posted()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "BUY", o.Order.Side)
	assert.Equal(t, "GTC", o.OrderType)
	assert.Equal(t, "123456", o.Order.TokenID)
	assert.Equal(t, "9991000", o.Order.MakerAmount)
	assert.Equal(t, "10300000", o.Order.TakerAmount)
	assert.Equal(t, "key-1", o.Owner)
	assert.Equal(t, "key-1", keys[0])
}

func TestExchange_SellIsFillOrKill(t *testing.T) {
	f := &fakeCLOB{response: `{"success":true,"orderID":"0xorder2","status":"matched","makingAmount":"10300000","takingAmount":"8240000"}`}
	ex := newLiveExchange(t, f)

	res, err := ex.Sell(context.Background(), "123456", 0.80, 10.30, domain.UrgencyFOK)
	require.NoError(t, err)
	assert.InDelta(t, 10.30, res.FilledShares, 1e-9)

	orders, _ := f.posted()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "SELL", o.Order.Side)
	assert.Equal(t, "FOK", o.OrderType)
	assert.Equal(t, "10300000", o.Order.MakerAmount)
	assert.Equal(t, "8240000", o.Order.TakerAmount)
}

func TestExchange_CachesCredsAndNegRisk(t *testing.T) {
	f := &fakeCLOB{response: `{"success":true,"orderID":"0xo","status":"live"}`}
	ex := newLiveExchange(t, f)

	for i := 0; i < 3; i++ {
		_, err := ex.Buy(context.Background(), "777", 0.98, 10)
		require.NoError(t, err)
	}
	derives, negRisks := f.counts()
	assert.Equal(t, 1, derives)
	assert.Equal(t, 1, negRisks)
	orders, _ := f.posted()
	assert.Len(t, orders, 3)
}

func TestExchange_RejectedOrder(t *testing.T) {
	f := &fakeCLOB{response: `{"success":false,"errorMsg":"not enough balance / allowance"}`}
	ex := newLiveExchange(t, f)

	_, err := ex.Buy(context.Background(), "123456", 0.97, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestExchange_BuyRejectsResolvedPrice(t *testing.T) {
	f := &fakeCLOB{}
	ex := newLiveExchange(t, f)

	_, err := ex.Buy(context.Background(), "123456", 1.0, 10)
	require.ErrorIs(t, err, domain.ErrInvalidQuote)
	orders, _ := f.posted()
	assert.Empty(t, orders)
}

func TestExchange_BalanceWithoutRPC(t *testing.T) {
	ex := newLiveExchange(t, &fakeCLOB{})

	_, err := ex.Balance(context.Background())
	assert.Error(t, err)
}
