package domain

// ContractKind distinguishes the two monitored contract families.
type ContractKind string

const (
	// ContractKindFactory is the launchpad factory (created/buy/sell/graduate).
	ContractKindFactory ContractKind = "factory"

	// ContractKindPair is an AMM pair (liq_add/liq_rm/swap).
	ContractKindPair ContractKind = "pair"
)

// Contract identifies one monitored contract stream.
type Contract struct {
	ID   string
	Name string
	Kind ContractKind
}
