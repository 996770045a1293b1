package types

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestHashLessOrdersByBytes(t *testing.T) {
	a := Hash{0x01}
	b := Hash{0x02}
	if !a.Less(b) || b.Less(a) {
		t.Fatal("Less must order lexicographically")
	}
}

func TestHashIsZero(t *testing.T) {
	if !ZeroHash.IsZero() {
		t.Fatal("ZeroHash.IsZero() must be true")
	}
	h := Hash{0x01}
	if h.IsZero() {
		t.Fatal("non-zero hash reported as zero")
	}
}

func TestHashFromBytesRoundTrip(t *testing.T) {
	src := make([]byte, HashSize)
	for i := range src {
		src[i] = byte(i)
	}
	h, err := HashFromBytes(src)
	if err != nil {
		t.Fatalf("HashFromBytes: %v", err)
	}
	if h.String() != Hash(h).String() {
		t.Fatal("unreachable")
	}
	if string(h.Bytes()) != string(src) {
		t.Fatal("Bytes() did not round-trip the original content")
	}
}

func TestHashFromBytesRejectsWrongWidth(t *testing.T) {
	if _, err := HashFromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a non-32-byte input")
	}
}

func TestHashBytesIsDefensiveCopy(t *testing.T) {
	h := Hash{0xAA}
	b := h.Bytes()
	b[0] = 0x00
	if h[0] != 0xAA {
		t.Fatal("mutating Bytes() output must not alias the Hash")
	}
}

func TestAddressStringAndIsZero(t *testing.T) {
	var a Address
	if !a.IsZero() {
		t.Fatal("zero-value Address.IsZero() must be true")
	}
	a[0] = 0x01
	if a.IsZero() {
		t.Fatal("non-zero address reported as zero")
	}
	if len(a.String()) != AddressSize*2 {
		t.Fatalf("String() want %d hex chars, got %d", AddressSize*2, len(a.String()))
	}
}

func TestAddressYAMLRoundTrip(t *testing.T) {
	want := Address{0x01, 0x02, 0x03}
	out, err := yaml.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Address
	if err := yaml.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAddressUnmarshalYAMLAcceptsBareHex(t *testing.T) {
	var a Address
	hex := "0x0000000000000000000000000000000000000001"
	if err := yaml.Unmarshal([]byte(hex), &a); err != nil {
		t.Fatalf("unmarshal 0x-prefixed: %v", err)
	}
	if a[AddressSize-1] != 0x01 {
		t.Fatalf("got %v", a)
	}

	var b Address
	bare := "0000000000000000000000000000000000000001"
	if err := yaml.Unmarshal([]byte(bare), &b); err != nil {
		t.Fatalf("unmarshal bare hex: %v", err)
	}
	if a != b {
		t.Fatal("0x-prefixed and bare hex forms must decode identically")
	}
}

func TestAddressUnmarshalYAMLRejectsWrongLength(t *testing.T) {
	var a Address
	if err := yaml.Unmarshal([]byte("0xabcd"), &a); err == nil {
		t.Fatal("expected an error for a too-short address")
	}
}

func TestAddressUnmarshalYAMLRejectsInvalidHex(t *testing.T) {
	var a Address
	if err := yaml.Unmarshal([]byte("not-hex!!"), &a); err == nil {
		t.Fatal("expected an error for invalid hex")
	}
}

func TestAccountIsContract(t *testing.T) {
	eoa := Account{Address: Address{0x01}}
	if eoa.IsContract() {
		t.Fatal("account with zero CodeHash must not be a contract")
	}
	contract := Account{Address: Address{0x02}, CodeHash: Hash{0x01}}
	if !contract.IsContract() {
		t.Fatal("account with a non-zero CodeHash must be a contract")
	}
}

func TestTxKindString(t *testing.T) {
	cases := map[TxKind]string{
		TxTransfer:       "Transfer",
		TxContractDeploy: "ContractDeploy",
		TxContractCall:   "ContractCall",
		TxUTXO:           "UTXO",
		TxKind(99):       "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("TxKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func hashBytes(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

func TestSigningBytesExcludesSignatureAndWitness(t *testing.T) {
	base := Transaction{Kind: TxTransfer, From: Address{0x01}, To: Address{0x02}, Amount: 10, Nonce: 1}
	withSig := base
	withSig.Signature = []byte("sig")
	withSig.Witness = []byte("witness")

	if string(base.SigningBytes()) != string(withSig.SigningBytes()) {
		t.Fatal("SigningBytes must not depend on Signature/Witness")
	}
}

func TestSigningBytesDivergesOnKindSenderAmountNonce(t *testing.T) {
	base := Transaction{Kind: TxTransfer, From: Address{0x01}, To: Address{0x02}, Amount: 10, Nonce: 1}

	variants := []Transaction{
		{Kind: TxContractCall, From: base.From, To: base.To, Amount: base.Amount, Nonce: base.Nonce},
		{Kind: base.Kind, From: Address{0x09}, To: base.To, Amount: base.Amount, Nonce: base.Nonce},
		{Kind: base.Kind, From: base.From, To: base.To, Amount: 999, Nonce: base.Nonce},
		{Kind: base.Kind, From: base.From, To: base.To, Amount: base.Amount, Nonce: 999},
	}
	baseBytes := string(base.SigningBytes())
	for i, v := range variants {
		if string(v.SigningBytes()) == baseBytes {
			t.Fatalf("variant %d did not change SigningBytes output", i)
		}
	}
}

func TestSigningBytesCommitsToUTXOFields(t *testing.T) {
	a := Transaction{
		Kind:    TxUTXO,
		Inputs:  []UtxoRef{{TxHash: hashBytes([]byte("parent")), OutputIndex: 0}},
		Outputs: []TxOut{{Value: 5, OwnerHash: hashBytes([]byte("owner"))}},
	}
	b := a
	b.Outputs = []TxOut{{Value: 6, OwnerHash: hashBytes([]byte("owner"))}}

	if string(a.SigningBytes()) == string(b.SigningBytes()) {
		t.Fatal("differing UTXO output value must change SigningBytes")
	}
}

func TestTransactionHashUsesSuppliedHasher(t *testing.T) {
	tx := Transaction{Kind: TxTransfer, From: Address{0x01}, To: Address{0x02}, Amount: 10}
	called := false
	h := tx.Hash(func(b []byte) Hash {
		called = true
		if string(b) != string(tx.SigningBytes()) {
			t.Fatal("Hash must hash SigningBytes(), not some other encoding")
		}
		return hashBytes([]byte("fixed"))
	})
	if !called {
		t.Fatal("Hash did not invoke the supplied hasher")
	}
	if h != hashBytes([]byte("fixed")) {
		t.Fatal("Hash did not return the hasher's output")
	}
}

func TestHeaderSerializeForPoWExcludesNonce(t *testing.T) {
	h1 := Header{PrevHash: Hash{0x01}, MerkleRoot: Hash{0x02}, Timestamp: 100, Height: 1, Difficulty: 4, Nonce: 1}
	h2 := h1
	h2.Nonce = 2

	if string(h1.SerializeForPoW()) != string(h2.SerializeForPoW()) {
		t.Fatal("SerializeForPoW must not depend on Nonce")
	}
	if string(h1.SerializeFull()) == string(h2.SerializeFull()) {
		t.Fatal("SerializeFull must change when Nonce changes")
	}
}

func TestHeaderSerializeFullExtendsForPoWWithNonce(t *testing.T) {
	h := Header{PrevHash: Hash{0x01}, Height: 7, Nonce: 42}
	full := h.SerializeFull()
	prefix := h.SerializeForPoW()
	if string(full[:len(prefix)]) != string(prefix) {
		t.Fatal("SerializeFull must extend SerializeForPoW's output, not replace it")
	}
	if len(full) != len(prefix)+8 {
		t.Fatalf("want %d trailing nonce bytes, got %d", 8, len(full)-len(prefix))
	}
}
