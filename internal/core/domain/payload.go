package domain

// Payload shapes for each event kind. Amounts are decimal strings of
// on-chain units (i128 on chain, NUMERIC in storage).

// TokenCreatedPayload carries the "created" event data.
type TokenCreatedPayload struct {
	Creator string `json:"creator"`
	Token   string `json:"token"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// TokensBoughtPayload carries the "buy" event data.
type TokensBoughtPayload struct {
	Buyer          string `json:"buyer"`
	Token          string `json:"token"`
	XLMAmount      string `json:"xlm_amount"`
	TokensReceived string `json:"tokens_received"`
}

// TokensSoldPayload carries the "sell" event data.
type TokensSoldPayload struct {
	Seller      string `json:"seller"`
	Token       string `json:"token"`
	TokensSold  string `json:"tokens_sold"`
	XLMReceived string `json:"xlm_received"`
}

// TokenGraduatedPayload carries the "graduate" event data.
type TokenGraduatedPayload struct {
	Token     string `json:"token"`
	XLMRaised string `json:"xlm_raised"`
}

// LiquidityPayload carries "liq_add" and "liq_rm" event data.
type LiquidityPayload struct {
	Provider  string `json:"provider"`
	Amount0   string `json:"amount_0"`
	Amount1   string `json:"amount_1"`
	Liquidity string `json:"liquidity"`
}

// SwapPayload carries the "swap" event data.
type SwapPayload struct {
	Sender    string `json:"sender"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}
