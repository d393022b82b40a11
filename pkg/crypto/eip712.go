package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator of the matching contract
type EIP712Domain struct {
	Name              string         // e.g. "1inch Aggregation Router"
	Version           string         // e.g. "6"
	ChainID           *big.Int       // 56 for a BSC fork
	VerifyingContract common.Address // matching contract address
}

// OrderEIP712 is the typed-data view of a limit order
type OrderEIP712 struct {
	Salt         *big.Int
	Maker        common.Address
	Receiver     common.Address
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// OrderHasher computes the order hash the matching contract returns from a fill
type OrderHasher struct {
	domain EIP712Domain
}

// NewOrderHasher creates a hasher bound to one matching contract
func NewOrderHasher(domain EIP712Domain) *OrderHasher {
	return &OrderHasher{domain: domain}
}

// Domain returns the domain the hasher was built with
func (h *OrderHasher) Domain() EIP712Domain {
	return h.domain
}

var orderTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": []apitypes.Type{
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "makerAsset", Type: "address"},
		{Name: "takerAsset", Type: "address"},
		{Name: "makingAmount", Type: "uint256"},
		{Name: "takingAmount", Type: "uint256"},
		{Name: "makerTraits", Type: "uint256"},
	},
}

// HashOrder returns keccak256("\x19\x01" || domainSeparator || hashStruct(order))
func (h *OrderHasher) HashOrder(order *OrderEIP712) (common.Hash, error) {
	typedData := apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              h.domain.Name,
			Version:           h.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(h.domain.ChainID),
			VerifyingContract: h.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":         order.Salt.String(),
			"maker":        order.Maker.Hex(),
			"receiver":     order.Receiver.Hex(),
			"makerAsset":   order.MakerAsset.Hex(),
			"takerAsset":   order.TakerAsset.Hex(),
			"makingAmount": order.MakingAmount.String(),
			"takingAmount": order.TakingAmount.String(),
			"makerTraits":  order.MakerTraits.String(),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash order: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(structHash)))
	return crypto.Keccak256Hash(rawData), nil
}

// SignOrder signs an order with a local key. Used to build fixtures; fills
// never verify signatures themselves.
func (h *OrderHasher) SignOrder(signer *Signer, order *OrderEIP712) ([]byte, error) {
	hash, err := h.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}

	signature, err := signer.SignDigest(hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return signature, nil
}
