package solana

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Transaction encoding errors.
var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrSignerNotRequired    = errors.New("signer is not a required signer of the message")
)

// AccountMeta describes an instruction account.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// SetComputeUnitLimit builds a compute budget instruction capping compute units.
func SetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = 2
	binary.LittleEndian.PutUint32(data[1:], units)
	return Instruction{ProgramID: MustPublicKey(ComputeBudgetProgramID), Data: data}
}

// SetComputeUnitPrice builds a compute budget instruction setting the priority fee.
func SetComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{ProgramID: MustPublicKey(ComputeBudgetProgramID), Data: data}
}

// Transfer builds a system program lamport transfer.
func Transfer(from, to PublicKey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 2)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return Instruction{
		ProgramID: MustPublicKey(SystemProgramID),
		Accounts: []AccountMeta{
			{PublicKey: from, IsSigner: true, IsWritable: true},
			{PublicKey: to, IsWritable: true},
		},
		Data: data,
	}
}

// CreateAssociatedTokenAccountIdempotent creates owner's ATA for mint if missing.
func CreateAssociatedTokenAccountIdempotent(payer, owner, mint PublicKey) (Instruction, PublicKey, error) {
	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return Instruction{}, PublicKey{}, err
	}
	return Instruction{
		ProgramID: MustPublicKey(AssociatedTokenProgramID),
		Accounts: []AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ata, IsWritable: true},
			{PublicKey: owner},
			{PublicKey: mint},
			{PublicKey: MustPublicKey(SystemProgramID)},
			{PublicKey: MustPublicKey(TokenProgramID)},
		},
		Data: []byte{1},
	}, ata, nil
}

// SyncNative refreshes a wrapped SOL account's token amount from its lamports.
func SyncNative(account PublicKey) Instruction {
	return Instruction{
		ProgramID: MustPublicKey(TokenProgramID),
		Accounts:  []AccountMeta{{PublicKey: account, IsWritable: true}},
		Data:      []byte{17},
	}
}

// CloseAccount closes a token account and sends its lamports to dest.
func CloseAccount(account, dest, owner PublicKey) Instruction {
	return Instruction{
		ProgramID: MustPublicKey(TokenProgramID),
		Accounts: []AccountMeta{
			{PublicKey: account, IsWritable: true},
			{PublicKey: dest, IsWritable: true},
			{PublicKey: owner, IsSigner: true},
		},
		Data: []byte{9},
	}
}

// PriorityFeeLamports converts a compute unit price into the lamports it costs.
func PriorityFeeLamports(microLamportsPerCU uint64, units uint32) uint64 {
	return microLamportsPerCU * uint64(units) / 1_000_000
}

// CompileMessage builds a legacy message with feePayer as the first signer.
func CompileMessage(feePayer PublicKey, blockhash string, ixs []Instruction) ([]byte, error) {
	bh, err := base58.Decode(blockhash)
	if err != nil || len(bh) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", blockhash)
	}

	type entry struct {
		key      PublicKey
		signer   bool
		writable bool
	}
	var order []PublicKey
	index := map[PublicKey]*entry{}
	add := func(pk PublicKey, signer, writable bool) {
		if e, ok := index[pk]; ok {
			e.signer = e.signer || signer
			e.writable = e.writable || writable
			return
		}
		index[pk] = &entry{key: pk, signer: signer, writable: writable}
		order = append(order, pk)
	}

	add(feePayer, true, true)
	for _, ix := range ixs {
		for _, a := range ix.Accounts {
			add(a.PublicKey, a.IsSigner, a.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}

	// Stable partition: signer+writable, signer, writable, readonly.
	var keys []PublicKey
	var numSigners, roSigners, roUnsigned int
	for _, pass := range []struct{ signer, writable bool }{
		{true, true}, {true, false}, {false, true}, {false, false},
	} {
		for _, pk := range order {
			e := index[pk]
			if e.signer != pass.signer || e.writable != pass.writable {
				continue
			}
			keys = append(keys, pk)
			switch {
			case e.signer && !e.writable:
				numSigners++
				roSigners++
			case e.signer:
				numSigners++
			case !e.writable:
				roUnsigned++
			}
		}
	}

	pos := make(map[PublicKey]int, len(keys))
	for i, pk := range keys {
		pos[pk] = i
	}
	if len(keys) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(keys))
	}

	var buf bytes.Buffer
	buf.Write([]byte{byte(numSigners), byte(roSigners), byte(roUnsigned)})
	writeShortVec(&buf, len(keys))
	for _, pk := range keys {
		buf.Write(pk[:])
	}
	buf.Write(bh)
	writeShortVec(&buf, len(ixs))
	for _, ix := range ixs {
		buf.WriteByte(byte(pos[ix.ProgramID]))
		writeShortVec(&buf, len(ix.Accounts))
		for _, a := range ix.Accounts {
			buf.WriteByte(byte(pos[a.PublicKey]))
		}
		writeShortVec(&buf, len(ix.Data))
		buf.Write(ix.Data)
	}
	return buf.Bytes(), nil
}

// BuildTransaction compiles, signs and serializes a single-signer transaction.
func BuildTransaction(signer Signer, blockhash string, ixs []Instruction) ([]byte, string, error) {
	msg, err := CompileMessage(signer.PublicKey(), blockhash, ixs)
	if err != nil {
		return nil, "", err
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return nil, "", fmt.Errorf("sign message: %w", err)
	}
	var buf bytes.Buffer
	writeShortVec(&buf, 1)
	buf.Write(sig)
	buf.Write(msg)
	return buf.Bytes(), base58.Encode(sig), nil
}

// SignSerialized fills signer's slot in an already serialized legacy or v0 transaction,
// such as one returned by a swap aggregator. Returns the signed bytes and the fee payer signature.
func SignSerialized(raw []byte, signer Signer) ([]byte, string, error) {
	numSigs, n, err := readShortVec(raw)
	if err != nil {
		return nil, "", err
	}
	sigStart := n
	msgStart := sigStart + numSigs*64
	if numSigs == 0 || len(raw) <= msgStart {
		return nil, "", ErrMalformedTransaction
	}
	msg := raw[msgStart:]

	hdr := 0
	if msg[0]&0x80 != 0 {
		hdr = 1 // versioned message prefix
	}
	if len(msg) < hdr+3 {
		return nil, "", ErrMalformedTransaction
	}
	required := int(msg[hdr])
	numKeys, kn, err := readShortVec(msg[hdr+3:])
	if err != nil {
		return nil, "", err
	}
	keysStart := hdr + 3 + kn
	if len(msg) < keysStart+numKeys*32 {
		return nil, "", ErrMalformedTransaction
	}

	me := signer.PublicKey()
	slot := -1
	for i := 0; i < required && i < numKeys && i < numSigs; i++ {
		if bytes.Equal(msg[keysStart+i*32:keysStart+(i+1)*32], me[:]) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, "", ErrSignerNotRequired
	}

	sig, err := signer.Sign(msg)
	if err != nil {
		return nil, "", fmt.Errorf("sign message: %w", err)
	}
	out := append([]byte(nil), raw...)
	copy(out[sigStart+slot*64:], sig)

	feePayerSig := out[sigStart : sigStart+64]
	return out, base58.Encode(feePayerSig), nil
}

func writeShortVec(buf *bytes.Buffer, n int) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

func readShortVec(b []byte) (int, int, error) {
	var v, shift int
	for i := 0; i < 3 && i < len(b); i++ {
		v |= int(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrMalformedTransaction
}
