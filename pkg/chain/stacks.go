package chain

// StacksBlock is the L2 payload: a sequence of transactions anchored to an
// L1 Bitcoin block, each carrying the contract-call metadata and ledger
// events the Stacks matchers inspect.
type StacksBlock struct {
	BlockIdentifier       BlockIdentifier `json:"block_identifier"`
	ParentBlockIdentifier BlockIdentifier `json:"parent_block_identifier"`
	// BitcoinAnchorBlockIdentifier is the L1 block this L2 block is anchored
	// to, carried through for cross-chain proof construction.
	BitcoinAnchorBlockIdentifier BlockIdentifier      `json:"bitcoin_anchor_block_identifier"`
	Timestamp                    uint64               `json:"timestamp"`
	Transactions                 []StacksTransaction  `json:"transactions"`
}

func (b StacksBlock) Identifier() BlockIdentifier       { return b.BlockIdentifier }
func (b StacksBlock) ParentIdentifier() BlockIdentifier { return b.ParentBlockIdentifier }

// StacksTransactionKind discriminates how a transaction invoked the chain.
type StacksTransactionKind int

const (
	StacksTxOther StacksTransactionKind = iota
	StacksTxContractCall
	StacksTxContractDeploy
)

// StacksTransaction carries the contract-call target (when applicable) and
// the ledger/print events the transaction's receipt recorded.
type StacksTransaction struct {
	TxID   string                `json:"txid"`
	Kind   StacksTransactionKind `json:"kind"`
	Sender string                `json:"sender"`

	// ContractIdentifier and Method are set only when Kind ==
	// StacksTxContractCall.
	ContractIdentifier string `json:"contract_identifier,omitempty"`
	Method             string `json:"method,omitempty"`

	Events []StacksEvent `json:"events"`
}

// StacksEventKind discriminates the ledger/print event payload carried by a
// StacksEvent.
type StacksEventKind int

const (
	StacksEventPrint StacksEventKind = iota
	StacksEventSTXTransfer
	StacksEventSTXMint
	StacksEventSTXBurn
	StacksEventSTXLock
	StacksEventFTTransfer
	StacksEventFTMint
	StacksEventFTBurn
	StacksEventNFTTransfer
	StacksEventNFTMint
	StacksEventNFTBurn
)

// Action renders the action name the way predicate specs spell it
// ("mint" | "burn" | "transfer" | "lock"), or "" for non-ledger events.
func (k StacksEventKind) Action() string {
	switch k {
	case StacksEventSTXTransfer, StacksEventFTTransfer, StacksEventNFTTransfer:
		return "transfer"
	case StacksEventSTXMint, StacksEventFTMint, StacksEventNFTMint:
		return "mint"
	case StacksEventSTXBurn, StacksEventFTBurn, StacksEventNFTBurn:
		return "burn"
	case StacksEventSTXLock:
		return "lock"
	default:
		return ""
	}
}

// StacksEvent is one entry of a transaction's receipt event log.
type StacksEvent struct {
	Kind StacksEventKind `json:"kind"`

	// ContractIdentifier is the emitting contract; set for print events.
	ContractIdentifier string `json:"contract_identifier,omitempty"`
	// PrintPayload is the deserialized print-event payload, inspected by
	// the print-event matcher's substring rule.
	PrintPayload string `json:"print_payload,omitempty"`

	// AssetIdentifier names the token ledger event's asset (fungible or
	// non-fungible), e.g. "SP000...my-token::my-token".
	AssetIdentifier string `json:"asset_identifier,omitempty"`
}
