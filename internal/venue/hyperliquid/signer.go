package hyperliquid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"
	"strings"

	"execgw/internal/adapter"
	"execgw/pkg/exception"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/yanun0323/errors"
)

const (
	exchangeChainID = 1337
	sourceMainnet   = "a"
	sourceTestnet   = "b"
)

var (
	domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	agentTypeHash  = crypto.Keccak256([]byte("Agent(string source,bytes32 connectionId)"))
	domainSep      = crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte("Exchange")),
		crypto.Keccak256([]byte("1")),
		common.BigToHash(big.NewInt(exchangeChainID)).Bytes(),
		common.LeftPadBytes(common.Address{}.Bytes(), 32),
	)
)

// Signer signs L1 actions locally with a secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	vault   *common.Address
	mainnet bool
}

// NewSigner parses a hex private key. vault may be empty.
func NewSigner(privateKey string, mainnet bool, vault string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, exception.ErrSignerInvalidKey
	}
	s := &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		mainnet: mainnet,
	}
	if vault != "" {
		if !common.IsHexAddress(vault) {
			return nil, errors.Wrap(exception.ErrSignerInvalidKey, "invalid vault address").With("vault", vault)
		}
		v := common.HexToAddress(vault)
		s.vault = &v
	}
	return s, nil
}

// Address returns the signing account.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Sign hashes action with nonce and signs the phantom agent typed data.
func (s *Signer) Sign(ctx context.Context, action any, nonce uint64) (adapter.Signature, error) {
	if ctx.Err() != nil {
		return adapter.Signature{}, exception.ErrSignerTimeout
	}
	conn, err := ActionHash(action, s.vault, nonce)
	if err != nil {
		return adapter.Signature{}, err
	}
	sig, err := crypto.Sign(AgentDigest(conn, s.mainnet), s.key)
	if err != nil {
		return adapter.Signature{}, errors.Wrap(err, "sign agent digest")
	}
	return adapter.Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

// ActionHash is keccak(msgpack(action) || nonce || vault flag [|| vault]).
func ActionHash(action any, vault *common.Address, nonce uint64) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(action); err != nil {
		return nil, errors.Wrap(err, "msgpack encode action")
	}
	buf.Write(binary.BigEndian.AppendUint64(nil, nonce))
	if vault == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		buf.Write(vault.Bytes())
	}
	return crypto.Keccak256(buf.Bytes()), nil
}

// AgentDigest is the EIP-712 digest of Agent{source, connectionId}.
func AgentDigest(connectionID []byte, mainnet bool) []byte {
	source := sourceTestnet
	if mainnet {
		source = sourceMainnet
	}
	structHash := crypto.Keccak256(agentTypeHash, crypto.Keccak256([]byte(source)), common.LeftPadBytes(connectionID, 32))
	return crypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
}
