package execution

import "github.com/polytorus/polytorus/internal/types"

// GasMeter tracks gas usage and enforces a transaction's gas limit.
type GasMeter struct {
	used  uint64
	limit uint64
}

// NewGasMeter constructs a GasMeter with the given limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Used returns gas consumed so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Remaining returns gas left before hitting the limit.
func (g *GasMeter) Remaining() uint64 {
	if g.used > g.limit {
		return 0
	}
	return g.limit - g.used
}

// ErrOutOfGas is returned by Consume once the limit would be exceeded.
var ErrOutOfGas = errOutOfGas{}

type errOutOfGas struct{}

func (errOutOfGas) Error() string { return "execution: out of gas" }

// Consume charges cost against the meter.
func (g *GasMeter) Consume(cost uint64) error {
	if g.used+cost > g.limit {
		g.used = g.limit
		return ErrOutOfGas
	}
	g.used += cost
	return nil
}

// VMContext carries the ambient call information a contract execution
// needs: who called it, what value was attached, and the transaction it's
// running within.
type VMContext struct {
	Caller   types.Address
	Contract types.Address
	Value    uint64
	TxHash   types.Hash
	GasLimit uint64
}

// VM executes contract bytecode against a Context, gas-metered.
type VM interface {
	Execute(code []byte, vmCtx *VMContext, execCtx *Context) (*Receipt, error)
}
