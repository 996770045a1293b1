package execution

import (
	"errors"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// ErrStorageFatal marks a batch-aborting storage failure, distinct from the
// per-transaction Failed receipt reserved for signature/nonce/fund errors.
type ErrStorageFatal struct{ Err error }

func (e *ErrStorageFatal) Error() string { return "execution: fatal storage error: " + e.Err.Error() }
func (e *ErrStorageFatal) Unwrap() error { return e.Err }

// ApplyTransaction applies one transaction against ctx in place, following
// an order-sensitive sequence: verify signature and nonce/UTXO input
// validity, charge gas up front, execute, refund unused gas. A failing
// transaction is recorded as a Failed receipt and its own pending changes
// are reverted, but the context itself is not aborted.
func ApplyTransaction(ctx *Context, vm VM, tx *types.Transaction) (*Receipt, error) {
	txHash := tx.Hash(hashsig.Hash)
	snap := ctx.snapshot()

	rec, err := applyOne(ctx, vm, tx, txHash)
	if err != nil {
		var fatal *ErrStorageFatal
		if errors.As(err, &fatal) {
			ctx.restore(snap)
			return nil, err
		}
	}
	if rec.Status != StatusSuccess {
		ctx.restore(snap)
		ctx.gasUsed += rec.GasUsed // the receipt's gas still counts toward the context's GasUsed; balance changes are reverted
	}
	return rec, nil
}

func applyOne(ctx *Context, vm VM, tx *types.Transaction, txHash types.Hash) (*Receipt, error) {
	switch tx.Kind {
	case types.TxTransfer:
		return applyTransfer(ctx, tx, txHash)
	case types.TxContractDeploy:
		return applyDeploy(ctx, tx, txHash)
	case types.TxContractCall:
		return applyCall(ctx, vm, tx, txHash)
	case types.TxUTXO:
		return applyUTXO(ctx, tx, txHash)
	default:
		return &Receipt{TxHash: txHash, Status: StatusFailed, Error: "unknown transaction kind"}, nil
	}
}

func failReceipt(txHash types.Hash, msg string) *Receipt {
	return &Receipt{TxHash: txHash, Status: StatusFailed, Error: msg}
}

func applyTransfer(ctx *Context, tx *types.Transaction, txHash types.Hash) (*Receipt, error) {
	if err := verifySignature(tx, tx.From); err != nil {
		return failReceipt(txHash, err.Error()), nil
	}
	from := ctx.Account(tx.From)
	if tx.Nonce != from.Nonce+1 {
		return failReceipt(txHash, "invalid nonce"), nil
	}
	cost := tx.GasLimit * tx.GasPrice
	if from.Balance < cost+tx.Amount {
		return failReceipt(txHash, "insufficient funds"), nil
	}

	from.Nonce = tx.Nonce
	from.Balance -= cost + tx.Amount
	ctx.SetAccount(from)

	to := ctx.Account(tx.To)
	to.Balance += tx.Amount
	ctx.SetAccount(to)

	gasUsed := uint64(21000) // flat transfer cost, matching a plain value-move's fixed work
	if gasUsed > tx.GasLimit {
		gasUsed = tx.GasLimit
	}
	refund := (tx.GasLimit - gasUsed) * tx.GasPrice
	from.Balance += refund
	ctx.SetAccount(from)

	ctx.gasUsed += gasUsed
	return &Receipt{TxHash: txHash, Status: StatusSuccess, GasUsed: gasUsed}, nil
}

func applyDeploy(ctx *Context, tx *types.Transaction, txHash types.Hash) (*Receipt, error) {
	if err := verifySignature(tx, tx.Deployer); err != nil {
		return failReceipt(txHash, err.Error()), nil
	}
	deployer := ctx.Account(tx.Deployer)
	if tx.Nonce != deployer.Nonce+1 {
		return failReceipt(txHash, "invalid nonce"), nil
	}
	cost := tx.GasLimit * tx.GasPrice
	if deployer.Balance < cost {
		return failReceipt(txHash, "insufficient funds"), nil
	}

	deployer.Nonce = tx.Nonce
	deployer.Balance -= cost

	codeHash := CodeHash(tx.Code)
	addr := DeriveContractAddress(tx.Deployer, tx.Nonce, codeHash)
	ctx.SetContractMeta(types.ContractMeta{
		Address:  addr,
		Creator:  tx.Deployer,
		CodeHash: codeHash,
	})
	ctx.ContractStoragePut(addr, []byte("__code__"), tx.Code)
	contractAcct := ctx.Account(addr)
	contractAcct.Address = addr
	contractAcct.CodeHash = codeHash
	ctx.SetAccount(contractAcct)

	gasUsed := uint64(32000 + len(tx.Code))
	if gasUsed > tx.GasLimit {
		// The receipt reports the whole gas limit as used; ApplyTransaction
		// reverts this transaction's changes, the deployer's debit included.
		ctx.SetAccount(deployer)
		ctx.gasUsed += tx.GasLimit
		return &Receipt{TxHash: txHash, Status: StatusOutOfGas, GasUsed: tx.GasLimit}, nil
	}
	refund := (tx.GasLimit - gasUsed) * tx.GasPrice
	deployer.Balance += refund
	ctx.SetAccount(deployer)

	ctx.gasUsed += gasUsed
	return &Receipt{TxHash: txHash, Status: StatusSuccess, GasUsed: gasUsed, ReturnData: addr[:]}, nil
}

func applyCall(ctx *Context, vm VM, tx *types.Transaction, txHash types.Hash) (*Receipt, error) {
	if err := verifySignature(tx, tx.Caller); err != nil {
		return failReceipt(txHash, err.Error()), nil
	}
	caller := ctx.Account(tx.Caller)
	if tx.Nonce != caller.Nonce+1 {
		return failReceipt(txHash, "invalid nonce"), nil
	}
	meta, ok := ctx.ContractMeta(tx.Contract)
	if !ok {
		return failReceipt(txHash, "contract not found"), nil
	}
	cost := tx.GasLimit * tx.GasPrice
	if caller.Balance < cost+tx.Value {
		return failReceipt(txHash, "insufficient funds"), nil
	}

	caller.Nonce = tx.Nonce
	caller.Balance -= cost + tx.Value
	ctx.SetAccount(caller)

	contractAcct := ctx.Account(tx.Contract)
	contractAcct.Balance += tx.Value
	ctx.SetAccount(contractAcct)

	if vm == nil {
		return failReceipt(txHash, "no contract engine configured"), nil
	}

	rec, err := vm.Execute(codeForMeta(ctx, meta), &VMContext{
		Caller:   tx.Caller,
		Contract: tx.Contract,
		Value:    tx.Value,
		TxHash:   txHash,
		GasLimit: tx.GasLimit,
	}, ctx)
	if err != nil {
		return failReceipt(txHash, err.Error()), nil
	}

	refund := uint64(0)
	if rec.Status == StatusSuccess && rec.GasUsed < tx.GasLimit {
		refund = (tx.GasLimit - rec.GasUsed) * tx.GasPrice
	}
	if refund > 0 {
		caller = ctx.Account(tx.Caller)
		caller.Balance += refund
		ctx.SetAccount(caller)
	}

	ctx.gasUsed += rec.GasUsed
	return rec, nil
}

// codeForMeta looks up a deployed contract's bytecode. applyDeploy stores
// the bytecode under the contract's own "__code__" storage key — execution
// never stores bytecode inside ContractMeta itself, keeping the metadata
// struct fixed-size.
func codeForMeta(ctx *Context, meta types.ContractMeta) []byte {
	code, _ := ctx.ContractStorageGet(meta.Address, []byte("__code__"))
	return code
}

func applyUTXO(ctx *Context, tx *types.Transaction, txHash types.Hash) (*Receipt, error) {
	spent := make([]types.UTXO, len(tx.Inputs))
	var totalIn uint64
	for i, ref := range tx.Inputs {
		u, ok := ctx.UTXOByRef(ref)
		if !ok {
			return failReceipt(txHash, "input already spent or unknown"), nil
		}
		spent[i] = u
		totalIn += u.Out.Value
	}

	if err := verifyUTXOWitness(tx, spent); err != nil {
		return failReceipt(txHash, err.Error()), nil
	}

	var totalOut uint64
	for _, out := range tx.Outputs {
		totalOut += out.Value
	}
	if totalOut > totalIn {
		return failReceipt(txHash, "outputs exceed inputs"), nil
	}

	for _, ref := range tx.Inputs {
		ctx.SpendUTXO(ref)
	}
	for i, out := range tx.Outputs {
		ctx.PutUTXO(types.UTXO{Ref: types.UtxoRef{TxHash: txHash, OutputIndex: uint32(i)}, Out: out})
	}

	gasUsed := uint64(10000)
	ctx.gasUsed += gasUsed
	return &Receipt{TxHash: txHash, Status: StatusSuccess, GasUsed: gasUsed}, nil
}

// ApplyCoinbase credits reward to miner as a protocol-level issuance. Per
// the module's coinbase convention, this does not increment the miner
// account's nonce: nonces track user-submitted transaction ordering, not
// issuance.
func ApplyCoinbase(ctx *Context, miner types.Address, reward uint64) {
	acct := ctx.Account(miner)
	acct.Balance += reward
	ctx.SetAccount(acct)
}

// ApplyBlock applies txs to ctx in list order, producing one receipt per
// transaction. Storage failures abort the remaining batch and are returned
// as an error; per-transaction business-rule failures are not.
func ApplyBlock(ctx *Context, vm VM, txs []*types.Transaction) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0, len(txs))
	for _, tx := range txs {
		rec, err := ApplyTransaction(ctx, vm, tx)
		if err != nil {
			return receipts, err
		}
		receipts = append(receipts, rec)
	}
	return receipts, nil
}
