package polymarket

// trading.go: envío de órdenes firmadas al CLOB y saldos on-chain.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
)

var (
	balanceOfABI     abi.ABI
	balanceOfERC1155 abi.ABI
)

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
	balanceOfERC1155, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf erc1155 abi: " + err.Error())
	}
}

// TradingClient firma y envía órdenes, y lee saldos vía RPC de Polygon.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client
}

// NewTradingClient crea un TradingClient. Con rpcURL vacío no hay lecturas on-chain.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	tc := &TradingClient{auth: auth}
	if rpcURL == "" {
		return tc, nil
	}
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	tc.rpcClient = rpc
	return tc, nil
}

// RPC devuelve el cliente ethclient (nil si no se configuró rpcURL).
func (tc *TradingClient) RPC() *ethclient.Client {
	return tc.rpcClient
}

// Close cierra la conexión RPC.
func (tc *TradingClient) Close() {
	if tc.rpcClient != nil {
		tc.rpcClient.Close()
	}
}

// orderType mapea la urgencia al tipo de orden del CLOB: FOK (fill-or-kill)
// nunca deja llenados parciales, el resto queda en el book como "GTC".
func orderType(u domain.Urgency) string {
	if u == domain.UrgencyFOK {
		return "FOK"
	}
	return "GTC"
}

// PlaceOrder firma req y la envía a POST /order.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: creds: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.apiKey(),
		OrderType: orderType(req.Urgency),
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("place order: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.OrderResult{}, fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	// en BUY se reciben shares (taking), en SELL se entregan (making)
	filled := parseUSDC(resp.TakingAmount)
	if req.Side == domain.SideSell {
		filled = parseUSDC(resp.MakingAmount)
	}
	return domain.OrderResult{
		OrderID:      resp.OrderID,
		Status:       resp.Status,
		FilledShares: filled,
	}, nil
}

// USDCBalance devuelve el saldo on-chain de USDC.e de la wallet.
func (tc *TradingClient) USDCBalance(ctx context.Context) (float64, error) {
	if tc.rpcClient == nil {
		return 0, fmt.Errorf("usdc balance: no rpc configured")
	}
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("usdc balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("usdc balance: %w: %w", domain.ErrTransient, err)
	}
	return unpackMicro(balanceOfABI, result)
}

// TokenBalance devuelve el saldo ERC-1155 de un token condicional, en shares.
func (tc *TradingClient) TokenBalance(ctx context.Context, tokenID string) (float64, error) {
	if tc.rpcClient == nil {
		return 0, fmt.Errorf("token balance: no rpc configured")
	}
	tid, err := parseTokenID(tokenID)
	if err != nil {
		return 0, fmt.Errorf("token balance: %w", err)
	}

	callData, err := balanceOfERC1155.Pack("balanceOf", tc.auth.address, tid)
	if err != nil {
		return 0, fmt.Errorf("token balance: pack: %w", err)
	}

	ctf := common.HexToAddress(ctfAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{To: &ctf, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("token balance: %w: %w", domain.ErrTransient, err)
	}
	return unpackMicro(balanceOfERC1155, result)
}

// parseTokenID acepta el token id en decimal o en hex con prefijo 0x.
func parseTokenID(tokenID string) (*big.Int, error) {
	tid := new(big.Int)
	if _, ok := tid.SetString(tokenID, 10); ok {
		return tid, nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(tokenID, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}
	return tid.SetBytes(b), nil
}

// unpackMicro decodifica un uint256 de balanceOf y lo pasa de micro-unidades a unidades.
func unpackMicro(a abi.ABI, result []byte) (float64, error) {
	vals, err := a.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("unpack balanceOf: %v", err)
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unpack balanceOf: unexpected type %T", vals[0])
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return f, nil
}
