package execution

import "github.com/polytorus/polytorus/internal/types"

// ReceiptStatus classifies the outcome of one transaction's application:
// the four distinct statuses for contract calls plus the plain
// success/failure of transfers.
type ReceiptStatus uint8

const (
	StatusSuccess ReceiptStatus = iota
	StatusFailed
	StatusOutOfGas
	StatusContractTrap
	StatusContractRevert
)

func (s ReceiptStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusOutOfGas:
		return "out_of_gas"
	case StatusContractTrap:
		return "contract_trap"
	case StatusContractRevert:
		return "contract_revert"
	default:
		return "unknown"
	}
}

// Event is a contract-emitted notification (host call emit_event).
type Event struct {
	Name    string
	Payload []byte
}

// Receipt records the outcome of applying one transaction.
type Receipt struct {
	TxHash     types.Hash
	Status     ReceiptStatus
	GasUsed    uint64
	ReturnData []byte
	Events     []Event
	Error      string
}
