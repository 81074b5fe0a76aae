package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// bookResponse es la respuesta de GET /book?token_id=.
type bookResponse struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type negRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// --- Gamma API ---

// gammaMarket es un mercado tal y como lo devuelve GET /markets de Gamma.
// Gamma devuelve varios campos numéricos como strings y algunos arrays
// codificados como JSON dentro de un string (outcomes, clobTokenIds).
type gammaMarket struct {
	ConditionID   string       `json:"conditionId"`
	Question      string       `json:"question"`
	Slug          string       `json:"slug"`
	EndDate       string       `json:"endDate"`
	EndDateISO    string       `json:"endDateIso"`
	EndDateISOAlt string       `json:"end_date_iso"`
	Active        bool         `json:"active"`
	Closed        bool         `json:"closed"`
	NegRisk       bool         `json:"negRisk"`
	Tokens        []gammaToken `json:"tokens"`
	Outcomes      string       `json:"outcomes"`
	OutcomePrices string       `json:"outcomePrices"`
	ClobTokenIDs  string       `json:"clobTokenIds"`
}

// gammaToken es un token (YES/NO) embebido en el mercado.
type gammaToken struct {
	TokenID string      `json:"token_id"`
	Outcome string      `json:"outcome"`
	Price   json.Number `json:"price"`
	Winner  bool        `json:"winner"`
}

// --- CLOB órdenes ---

// clobOrderRequest es el body de POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}
