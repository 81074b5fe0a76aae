package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// resolvedPrice es el precio a partir del cual un token se considera ganador.
const resolvedPrice = 0.99

// marketKeywords identifica el tipo de mercado en question o slug.
var marketKeywords = map[domain.MarketType][]string{
	domain.MarketType5m:  {"5 minute", "5-minute", "5min", "next 5"},
	domain.MarketType15m: {"15 minute", "15-minute", "15min", "next 15"},
}

// mapBook convierte la respuesta de /book a domain.OrderBook: ordena cada lado,
// conserva los domain.BookDepth mejores niveles y valida el resultado.
func mapBook(tokenID string, r bookResponse) (domain.OrderBook, error) {
	bids, err := mapBookEntries(r.Bids, false)
	if err != nil {
		return domain.OrderBook{}, err
	}
	asks, err := mapBookEntries(r.Asks, true)
	if err != nil {
		return domain.OrderBook{}, err
	}
	ob := domain.OrderBook{TokenID: tokenID, Bids: bids, Asks: asks}
	if err := ob.Validate(); err != nil {
		return domain.OrderBook{}, err
	}
	return ob, nil
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
// Un precio que no parsea invalida el book entero.
func mapBookEntries(raw []bookEntryRaw, ascending bool) ([]domain.BookEntry, error) {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, err := strconv.ParseFloat(r.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: price %q", domain.ErrInvalidQuote, r.Price)
		}
		size, _ := strconv.ParseFloat(r.Size, 64)
		if size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	if len(entries) > domain.BookDepth {
		entries = entries[:domain.BookDepth]
	}
	return entries, nil
}

// classify decide si un mercado de Gamma es un Up/Down de corto plazo de los
// assets y tipos configurados. ok=false si no lo es o ya cerró.
func classify(gm gammaMarket, assets []string, types []domain.MarketType, now time.Time) (domain.Candidate, bool) {
	q := strings.ToUpper(gm.Question)
	slug := strings.ToLower(gm.Slug)

	asset := ""
	for _, a := range assets {
		if strings.Contains(q, strings.ToUpper(a)) || strings.Contains(slug, strings.ToLower(a)) {
			asset = strings.ToUpper(a)
			break
		}
	}
	if asset == "" {
		return domain.Candidate{}, false
	}

	var mt domain.MarketType
	lowerQ := strings.ToLower(gm.Question)
	for _, t := range longestFirst(types) {
		for _, kw := range marketKeywords[t] {
			if strings.Contains(lowerQ, kw) || strings.Contains(slug, kw) {
				mt = t
				break
			}
		}
		if mt != "" {
			break
		}
	}
	if mt == "" {
		return domain.Candidate{}, false
	}

	if !strings.Contains(q, "UP") && !strings.Contains(q, "DOWN") &&
		!strings.Contains(slug, "up") && !strings.Contains(slug, "down") {
		return domain.Candidate{}, false
	}

	closeAt, ok := parseEndDate(gm)
	if !ok || !closeAt.After(now) {
		return domain.Candidate{}, false
	}

	dir := domain.DirectionDown
	if strings.Contains(q, "UP") || strings.Contains(slug, "up") {
		dir = domain.DirectionUp
	}

	yes, no := tokenIDs(gm)
	return domain.Candidate{
		MarketID:   gm.ConditionID,
		Question:   gm.Question,
		Slug:       gm.Slug,
		Asset:      asset,
		Direction:  dir,
		MarketType: mt,
		CloseAt:    closeAt,
		YesTokenID: yes,
		NoTokenID:  no,
	}, true
}

// longestFirst ordena los tipos de mayor a menor duración: "5 minute" es
// substring de "15 minute".
func longestFirst(types []domain.MarketType) []domain.MarketType {
	out := append([]domain.MarketType(nil), types...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Minutes() > out[j].Minutes() })
	return out
}

// parseEndDate prueba endDate, endDateIso y end_date_iso en ese orden.
func parseEndDate(gm gammaMarket) (time.Time, bool) {
	for _, raw := range []string{gm.EndDate, gm.EndDateISO, gm.EndDateISOAlt} {
		if raw == "" {
			continue
		}
		// Polymarket usa varios formatos; intentamos los más comunes
		for _, layout := range []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05.000Z",
			"2006-01-02T15:04:05Z",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// tokenIDs devuelve los token ids del lado YES y NO. Usa tokens[] si viene,
// si no los arrays outcomes + clobTokenIds (índice 0 = YES).
func tokenIDs(gm gammaMarket) (yes, no string) {
	for _, t := range gm.Tokens {
		switch strings.ToUpper(t.Outcome) {
		case "YES", "UP":
			yes = t.TokenID
		case "NO", "DOWN":
			no = t.TokenID
		}
	}
	if yes != "" {
		return yes, no
	}

	ids := decodeStringArray(gm.ClobTokenIDs)
	if len(ids) > 0 {
		yes = ids[0]
	}
	if len(ids) > 1 {
		no = ids[1]
	}
	return yes, no
}

// outcomeOf devuelve el lado ganador de un mercado cerrado con un token a
// precio >= 0.99. Cualquier otro caso es pendiente.
func outcomeOf(gm gammaMarket) domain.Outcome {
	if !gm.Closed {
		return domain.OutcomePending
	}
	for i, t := range gm.Tokens {
		price, err := t.Price.Float64()
		if err != nil || price < resolvedPrice {
			continue
		}
		return sideOf(t.Outcome, i)
	}

	prices := decodeStringArray(gm.OutcomePrices)
	outcomes := decodeStringArray(gm.Outcomes)
	for i, raw := range prices {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price < resolvedPrice {
			continue
		}
		label := ""
		if i < len(outcomes) {
			label = outcomes[i]
		}
		return sideOf(label, i)
	}
	return domain.OutcomePending
}

// sideOf mapea la etiqueta de un outcome (o su índice si no es reconocible) a YES/NO.
func sideOf(label string, idx int) domain.Outcome {
	switch strings.ToUpper(label) {
	case "YES", "UP":
		return domain.OutcomeYes
	case "NO", "DOWN":
		return domain.OutcomeNo
	}
	if idx == 0 {
		return domain.OutcomeYes
	}
	return domain.OutcomeNo
}

// decodeStringArray decodifica un array JSON embebido en un string
// ("[\"Up\", \"Down\"]"). Devuelve nil si no es válido.
func decodeStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// parseUSDC convierte un string en micro-unidades ("1000000") a unidades.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / 1_000_000
}
