// Package onchain prepara la wallet en Polygon para operar en el CLOB:
// allowance de USDC.e y approval ERC1155 sobre los exchanges de Polymarket.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	polygonChainID = int64(137)

	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	ctfAddress   = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

	normalExchange  = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	negRiskExchange = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
	negRiskAdapter  = "0xd91E80cF2E7be2e162c6513ceD06f1dD0dA35296"

	approvalGasLimit = uint64(80_000)
	gasCacheTTL      = 5 * time.Minute
	receiptTimeout   = 60 * time.Second
)

var (
	erc1155ABI abi.ABI
	erc20ABI   abi.ABI

	// 1M USDC.e en unidades de 6 decimales
	minAllowance = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000))
	maxUint256   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	fallbackGas  = big.NewInt(30_000_000_000) // 30 gwei
)

func init() {
	var err error
	erc1155ABI, err = abi.JSON(strings.NewReader(`[
		{"name":"setApprovalForAll","type":"function",
		 "inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
		{"name":"isApprovedForAll","type":"function",
		 "inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],
		 "outputs":[{"name":"","type":"bool"}]}
	]`))
	if err != nil {
		panic("erc1155 abi: " + err.Error())
	}
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{"name":"approve","type":"function",
		 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]},
		{"name":"allowance","type":"function",
		 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`))
	if err != nil {
		panic("erc20 abi: " + err.Error())
	}
}

// Backend es el subconjunto de ethclient.Client que usa el Approver.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Approver comprueba y, si faltan, envía las aprobaciones que el CLOB necesita
// para mover USDC.e (compras) y tokens condicionales (ventas).
type Approver struct {
	backend     Backend
	key         *ecdsa.PrivateKey
	address     common.Address
	pollEvery   time.Duration
	mu          sync.Mutex
	cachedGas   *big.Int
	gasCachedAt time.Time
}

// ApproverOption configura un Approver.
type ApproverOption func(*Approver)

// WithReceiptPoll cambia el intervalo de sondeo de recibos (tests).
func WithReceiptPoll(d time.Duration) ApproverOption {
	return func(a *Approver) { a.pollEvery = d }
}

// NewApprover crea un Approver. privateKeyHex admite prefijo 0x.
func NewApprover(backend Backend, privateKeyHex string, opts ...ApproverOption) (*Approver, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewApprover: decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewApprover: invalid private key: %w", err)
	}
	a := &Approver{
		backend:   backend,
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		pollEvery: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Address devuelve la dirección de la wallet.
func (a *Approver) Address() common.Address {
	return a.address
}

// EnsureApprovals deja fijados:
//   - setApprovalForAll del CTF para los dos exchanges y el adapter neg-risk (SELL)
//   - allowance de USDC.e para los dos exchanges (BUY)
//
// Solo envía transacciones para lo que falte.
func (a *Approver) EnsureApprovals(ctx context.Context) error {
	ctf := common.HexToAddress(ctfAddress)
	for _, op := range []string{normalExchange, negRiskExchange, negRiskAdapter} {
		operator := common.HexToAddress(op)
		approved, err := a.isApprovedForAll(ctx, ctf, operator)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check ERC1155 approval for %s: %w", op, err)
		}
		if approved {
			slog.Debug("approvals: ERC1155 already approved", "operator", op)
			continue
		}
		slog.Info("approvals: setting ERC1155 approval", "operator", op)
		data, err := erc1155ABI.Pack("setApprovalForAll", operator, true)
		if err != nil {
			return err
		}
		if err := a.transact(ctx, ctf, data); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: setApprovalForAll %s: %w", op, err)
		}
	}

	usdc := common.HexToAddress(usdcEAddress)
	for _, ex := range []string{normalExchange, negRiskExchange} {
		spender := common.HexToAddress(ex)
		allowance, err := a.allowance(ctx, usdc, spender)
		if err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: check USDC.e allowance for %s: %w", ex, err)
		}
		if allowance.Cmp(minAllowance) >= 0 {
			slog.Debug("approvals: USDC.e allowance sufficient", "exchange", ex)
			continue
		}
		slog.Info("approvals: setting USDC.e allowance", "exchange", ex)
		data, err := erc20ABI.Pack("approve", spender, maxUint256)
		if err != nil {
			return err
		}
		if err := a.transact(ctx, usdc, data); err != nil {
			return fmt.Errorf("onchain.EnsureApprovals: approve %s: %w", ex, err)
		}
	}
	return nil
}

func (a *Approver) isApprovedForAll(ctx context.Context, ctf, operator common.Address) (bool, error) {
	data, err := erc1155ABI.Pack("isApprovedForAll", a.address, operator)
	if err != nil {
		return false, err
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &ctf, Data: data}, nil)
	if err != nil {
		return false, err
	}
	vals, err := erc1155ABI.Unpack("isApprovedForAll", out)
	if err != nil {
		return false, err
	}
	if len(vals) == 0 {
		return false, fmt.Errorf("empty isApprovedForAll result")
	}
	ok, _ := vals[0].(bool)
	return ok, nil
}

func (a *Approver) allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", a.address, spender)
	if err != nil {
		return nil, err
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty allowance result")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", vals[0])
	}
	return v, nil
}

// transact firma, envía y espera el recibo de una llamada a contrato.
func (a *Approver) transact(ctx context.Context, to common.Address, data []byte) error {
	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	tx := types.NewTransaction(nonce, to, big.NewInt(0), approvalGasLimit, a.gasPrice(ctx), data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(polygonChainID)), a.key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := a.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return fmt.Errorf("wait receipt %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}
	slog.Info("approvals: tx confirmed", "tx", signed.Hash().Hex(), "block", receipt.BlockNumber)
	return nil
}

// gasPrice devuelve el precio sugerido +10%, cacheado unos minutos.
// Si el RPC falla usa el último valor o 30 gwei.
func (a *Approver) gasPrice(ctx context.Context) *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cachedGas != nil && time.Since(a.gasCachedAt) < gasCacheTTL {
		return a.cachedGas
	}
	price, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		slog.Warn("approvals: gas price unavailable, using fallback", "err", err)
		if a.cachedGas != nil {
			return a.cachedGas
		}
		return fallbackGas
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))
	a.cachedGas = buffered
	a.gasCachedAt = time.Now()
	return buffered
}

func (a *Approver) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.pollEvery)
	defer ticker.Stop()
	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
