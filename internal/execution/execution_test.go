package execution

import (
	"crypto/ed25519"
	"testing"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

type keyedSigner struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) keyedSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return keyedSigner{pub: pub, priv: priv}
}

func (k keyedSigner) address() types.Address { return DeriveAddress(k.pub) }

func (k keyedSigner) sign(tx *types.Transaction) {
	sig := ed25519.Sign(k.priv, tx.SigningBytes())
	tx.Signature = append(append([]byte(nil), k.pub...), sig...)
}

// ownerHash is the eUTXO analogue of address(): the value a TxOut.OwnerHash
// must equal for k to later authorize spending it.
func (k keyedSigner) ownerHash() types.Hash { return hashsig.Hash(k.pub) }

// witnessFor signs tx (after Inputs/Outputs are set) once per input and
// concatenates the (pubkey || sig) entries in input order, authorizing
// every input as spendable by k.
func (k keyedSigner) witnessFor(tx *types.Transaction) []byte {
	sig := ed25519.Sign(k.priv, tx.SigningBytes())
	entry := append(append([]byte(nil), k.pub...), sig...)
	witness := make([]byte, 0, len(entry)*len(tx.Inputs))
	for range tx.Inputs {
		witness = append(witness, entry...)
	}
	return witness
}

// stubVM is a fixed-outcome VM double for tests that don't exercise WASM.
type stubVM struct {
	rec *Receipt
	err error
}

func (s *stubVM) Execute(code []byte, vmCtx *VMContext, execCtx *Context) (*Receipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := *s.rec
	r.TxHash = vmCtx.TxHash
	return &r, nil
}

func TestApplyTransferSuccess(t *testing.T) {
	state := NewState()
	signer := newSigner(t)
	from := signer.address()
	to := DeriveAddress([]byte("recipient"))

	state.putAccount(types.Account{Address: from, Balance: 1_000_000, Nonce: 0})

	eng := NewEngine(state)
	ctx, err := eng.BeginExecution()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	tx := &types.Transaction{
		Kind: types.TxTransfer, From: from, To: to,
		Amount: 100, Nonce: 1, GasLimit: 50000, GasPrice: 1,
	}
	signer.sign(tx)

	rec, err := ApplyTransaction(ctx, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusSuccess {
		t.Fatalf("want success, got %v (%s)", rec.Status, rec.Error)
	}

	if _, err := ctx.CommitExecution(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if got := state.Account(to).Balance; got != 100 {
		t.Fatalf("recipient balance = %d, want 100", got)
	}
	if got := state.Account(from).Nonce; got != 1 {
		t.Fatalf("sender nonce = %d, want 1", got)
	}
}

func TestApplyTransferBadSignatureFails(t *testing.T) {
	state := NewState()
	signer := newSigner(t)
	from := signer.address()
	state.putAccount(types.Account{Address: from, Balance: 1000, Nonce: 0})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()

	tx := &types.Transaction{Kind: types.TxTransfer, From: from, To: DeriveAddress([]byte("x")), Amount: 10, Nonce: 1, GasLimit: 1000, GasPrice: 1}
	tx.Signature = make([]byte, ed25519.PublicKeySize+ed25519.SignatureSize) // garbage

	rec, err := ApplyTransaction(ctx, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("want failed, got %v", rec.Status)
	}
	// Sender balance must be untouched: per-tx failure reverts pending changes.
	if got := ctx.Account(from).Balance; got != 1000 {
		t.Fatalf("balance changed on failed tx: %d", got)
	}
}

func TestApplyTransferInsufficientFunds(t *testing.T) {
	state := NewState()
	signer := newSigner(t)
	from := signer.address()
	state.putAccount(types.Account{Address: from, Balance: 10, Nonce: 0})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()
	tx := &types.Transaction{Kind: types.TxTransfer, From: from, To: DeriveAddress([]byte("y")), Amount: 1000, Nonce: 1, GasLimit: 100, GasPrice: 1}
	signer.sign(tx)

	rec, err := ApplyTransaction(ctx, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("want failed, got %v", rec.Status)
	}
}

func TestBatchContinuesAfterPerTxFailure(t *testing.T) {
	state := NewState()
	signer := newSigner(t)
	from := signer.address()
	state.putAccount(types.Account{Address: from, Balance: 1000, Nonce: 0})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()

	bad := &types.Transaction{Kind: types.TxTransfer, From: from, To: DeriveAddress([]byte("a")), Amount: 9999, Nonce: 1, GasLimit: 100, GasPrice: 1}
	signer.sign(bad)

	good := &types.Transaction{Kind: types.TxTransfer, From: from, To: DeriveAddress([]byte("b")), Amount: 10, Nonce: 1, GasLimit: 100, GasPrice: 1}
	signer.sign(good)

	receipts, err := ApplyBlock(ctx, nil, []*types.Transaction{bad, good})
	if err != nil {
		t.Fatalf("apply block: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("want 2 receipts, got %d", len(receipts))
	}
	if receipts[0].Status != StatusFailed {
		t.Fatalf("first tx should fail, got %v", receipts[0].Status)
	}
	if receipts[1].Status != StatusSuccess {
		t.Fatalf("second tx should succeed, got %v (%s)", receipts[1].Status, receipts[1].Error)
	}
}

func TestOnlyOneContextActive(t *testing.T) {
	eng := NewEngine(NewState())
	ctx1, err := eng.BeginExecution()
	if err != nil {
		t.Fatalf("begin 1: %v", err)
	}
	if _, err := eng.BeginExecution(); err != ErrContextBusy {
		t.Fatalf("want ErrContextBusy, got %v", err)
	}
	ctx1.RollbackExecution()
	if _, err := eng.BeginExecution(); err != nil {
		t.Fatalf("begin after rollback: %v", err)
	}
}

func TestRollbackDiscardsChanges(t *testing.T) {
	state := NewState()
	signer := newSigner(t)
	from := signer.address()
	state.putAccount(types.Account{Address: from, Balance: 1000, Nonce: 0})
	rootBefore := state.StateRoot()

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()
	tx := &types.Transaction{Kind: types.TxTransfer, From: from, To: DeriveAddress([]byte("z")), Amount: 500, Nonce: 1, GasLimit: 50000, GasPrice: 1}
	signer.sign(tx)
	if _, err := ApplyTransaction(ctx, nil, tx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ctx.RollbackExecution()

	if state.StateRoot() != rootBefore {
		t.Fatal("rollback should leave base state untouched")
	}
}

func TestStateRootDeterministic(t *testing.T) {
	buildState := func() *State {
		s := NewState()
		s.putAccount(types.Account{Address: DeriveAddress([]byte("p1")), Balance: 10, Nonce: 2})
		s.putAccount(types.Account{Address: DeriveAddress([]byte("p2")), Balance: 20, Nonce: 3})
		s.putUTXO(types.UTXO{Ref: types.UtxoRef{TxHash: types.Hash{1}, OutputIndex: 0}, Out: types.TxOut{Value: 5}})
		return s
	}
	s1 := buildState()
	s2 := buildState()
	if s1.StateRoot() != s2.StateRoot() {
		t.Fatal("identical states must produce identical roots")
	}
}

func TestApplyCoinbaseDoesNotIncrementNonce(t *testing.T) {
	state := NewState()
	miner := DeriveAddress([]byte("miner"))
	state.putAccount(types.Account{Address: miner, Balance: 0, Nonce: 7})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()
	ApplyCoinbase(ctx, miner, 5_000_000)
	if _, err := ctx.CommitExecution(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	acct := state.Account(miner)
	if acct.Balance != 5_000_000 {
		t.Fatalf("balance = %d, want 5000000", acct.Balance)
	}
	if acct.Nonce != 7 {
		t.Fatalf("coinbase must not touch nonce, got %d", acct.Nonce)
	}
}

func TestApplyUTXOTransaction(t *testing.T) {
	state := NewState()
	owner := newSigner(t)
	inputRef := types.UtxoRef{TxHash: types.Hash{9}, OutputIndex: 0}
	state.putUTXO(types.UTXO{Ref: inputRef, Out: types.TxOut{Value: 100, OwnerHash: owner.ownerHash()}})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()

	tx := &types.Transaction{
		Kind:    types.TxUTXO,
		Inputs:  []types.UtxoRef{inputRef},
		Outputs: []types.TxOut{{Value: 60}, {Value: 40}},
	}
	tx.Witness = owner.witnessFor(tx)
	rec, err := ApplyTransaction(ctx, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusSuccess {
		t.Fatalf("want success, got %v (%s)", rec.Status, rec.Error)
	}
	if _, err := ctx.CommitExecution(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, ok := state.UTXOByRef(inputRef); ok {
		t.Fatal("input should be spent")
	}
	if _, ok := state.UTXOByRef(types.UtxoRef{TxHash: rec.TxHash, OutputIndex: 0}); !ok {
		t.Fatal("expected new output 0")
	}
}

func TestApplyUTXORejectsOverspend(t *testing.T) {
	state := NewState()
	owner := newSigner(t)
	inputRef := types.UtxoRef{TxHash: types.Hash{3}, OutputIndex: 0}
	state.putUTXO(types.UTXO{Ref: inputRef, Out: types.TxOut{Value: 10, OwnerHash: owner.ownerHash()}})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()
	tx := &types.Transaction{
		Kind:    types.TxUTXO,
		Inputs:  []types.UtxoRef{inputRef},
		Outputs: []types.TxOut{{Value: 100}},
	}
	tx.Witness = owner.witnessFor(tx)
	rec, err := ApplyTransaction(ctx, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("want failed, got %v", rec.Status)
	}
}

func TestApplyUTXORejectsWrongOwnerWitness(t *testing.T) {
	state := NewState()
	owner := newSigner(t)
	attacker := newSigner(t)
	inputRef := types.UtxoRef{TxHash: types.Hash{7}, OutputIndex: 0}
	state.putUTXO(types.UTXO{Ref: inputRef, Out: types.TxOut{Value: 50, OwnerHash: owner.ownerHash()}})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()
	tx := &types.Transaction{
		Kind:    types.TxUTXO,
		Inputs:  []types.UtxoRef{inputRef},
		Outputs: []types.TxOut{{Value: 50}},
	}
	tx.Witness = attacker.witnessFor(tx)
	rec, err := ApplyTransaction(ctx, nil, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Fatalf("want failed for a witness not matching the input's owner, got %v", rec.Status)
	}
	if _, ok := state.UTXOByRef(inputRef); !ok {
		t.Fatal("input must remain unspent when authorization fails")
	}
}

func TestContractCallInvokesVM(t *testing.T) {
	state := NewState()
	signer := newSigner(t)
	caller := signer.address()
	contract := DeriveAddress([]byte("contract"))
	state.putAccount(types.Account{Address: caller, Balance: 1_000_000, Nonce: 0})
	state.putContractMeta(types.ContractMeta{Address: contract, Creator: caller, CodeHash: types.Hash{1}})

	eng := NewEngine(state)
	ctx, _ := eng.BeginExecution()

	tx := &types.Transaction{
		Kind: types.TxContractCall, Caller: caller, Contract: contract,
		Function: "do", Nonce: 1, GasLimit: 10000, GasPrice: 1,
	}
	signer.sign(tx)

	vm := &stubVM{rec: &Receipt{Status: StatusSuccess, GasUsed: 500}}
	rec, err := ApplyTransaction(ctx, vm, tx)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.Status != StatusSuccess {
		t.Fatalf("want success, got %v (%s)", rec.Status, rec.Error)
	}
}
