// Package order turns the string form of a limit order into the packed tuple
// the matching contract takes.
package order

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/crypto"
)

// Fields is an order as strings. Numeric fields are decimal or 0x hex;
// address fields are a packed integer or a 0x 20-byte address.
type Fields struct {
	Salt         string
	Maker        string
	Receiver     string
	MakerAsset   string
	TakerAsset   string
	MakingAmount string
	TakingAmount string
	MakerTraits  string
}

// Order is the canonical 8-word order. Address words keep their high 96 bits zero.
type Order struct {
	Salt         *uint256.Int
	Maker        *uint256.Int
	Receiver     *uint256.Int
	MakerAsset   *uint256.Int
	TakerAsset   *uint256.Int
	MakingAmount *uint256.Int
	TakingAmount *uint256.Int
	MakerTraits  *uint256.Int
}

// Tuple is the ABI view of an order. Address fields are uint256 on-chain, so
// every member is a big integer.
type Tuple struct {
	Salt         *big.Int
	Maker        *big.Int
	Receiver     *big.Int
	MakerAsset   *big.Int
	TakerAsset   *big.Int
	MakingAmount *big.Int
	TakingAmount *big.Int
	MakerTraits  *big.Int
}

// Canonicalize parses every field. The first failure is returned wrapped with
// the field name.
func Canonicalize(f Fields) (Order, error) {
	var (
		o   Order
		err error
	)

	numeric := []struct {
		name string
		in   string
		out  **uint256.Int
	}{
		{"salt", f.Salt, &o.Salt},
		{"making_amount", f.MakingAmount, &o.MakingAmount},
		{"taking_amount", f.TakingAmount, &o.TakingAmount},
		{"maker_traits", f.MakerTraits, &o.MakerTraits},
	}
	for _, n := range numeric {
		if *n.out, err = codec.ParseUint256(n.in); err != nil {
			return Order{}, fmt.Errorf("%s: %w", n.name, err)
		}
	}

	addresses := []struct {
		name string
		in   string
		out  **uint256.Int
	}{
		{"maker", f.Maker, &o.Maker},
		{"receiver", f.Receiver, &o.Receiver},
		{"maker_asset", f.MakerAsset, &o.MakerAsset},
		{"taker_asset", f.TakerAsset, &o.TakerAsset},
	}
	for _, a := range addresses {
		if *a.out, err = codec.ParseAddressWord(a.in); err != nil {
			return Order{}, fmt.Errorf("%s: %w", a.name, err)
		}
	}
	return o, nil
}

// FromAddresses builds an order from raw addresses, packing each one
func FromAddresses(salt *uint256.Int, maker, receiver, makerAsset, takerAsset common.Address,
	makingAmount, takingAmount, makerTraits *uint256.Int) Order {
	return Order{
		Salt:         new(uint256.Int).Set(salt),
		Maker:        codec.PackAddress(maker),
		Receiver:     codec.PackAddress(receiver),
		MakerAsset:   codec.PackAddress(makerAsset),
		TakerAsset:   codec.PackAddress(takerAsset),
		MakingAmount: new(uint256.Int).Set(makingAmount),
		TakingAmount: new(uint256.Int).Set(takingAmount),
		MakerTraits:  new(uint256.Int).Set(makerTraits),
	}
}

// Tuple returns the ABI argument for fillOrder / fillOrderArgs
func (o Order) Tuple() Tuple {
	return Tuple{
		Salt:         o.Salt.ToBig(),
		Maker:        o.Maker.ToBig(),
		Receiver:     o.Receiver.ToBig(),
		MakerAsset:   o.MakerAsset.ToBig(),
		TakerAsset:   o.TakerAsset.ToBig(),
		MakingAmount: o.MakingAmount.ToBig(),
		TakingAmount: o.TakingAmount.ToBig(),
		MakerTraits:  o.MakerTraits.ToBig(),
	}
}

func (o Order) MakerAddress() (common.Address, error)      { return codec.UnpackAddress(o.Maker) }
func (o Order) ReceiverAddress() (common.Address, error)   { return codec.UnpackAddress(o.Receiver) }
func (o Order) MakerAssetAddress() (common.Address, error) { return codec.UnpackAddress(o.MakerAsset) }
func (o Order) TakerAssetAddress() (common.Address, error) { return codec.UnpackAddress(o.TakerAsset) }

// EIP712 returns the typed-data view used to compute the order hash
func (o Order) EIP712() (*crypto.OrderEIP712, error) {
	maker, err := o.MakerAddress()
	if err != nil {
		return nil, fmt.Errorf("maker: %w", err)
	}
	receiver, err := o.ReceiverAddress()
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	makerAsset, err := o.MakerAssetAddress()
	if err != nil {
		return nil, fmt.Errorf("maker_asset: %w", err)
	}
	takerAsset, err := o.TakerAssetAddress()
	if err != nil {
		return nil, fmt.Errorf("taker_asset: %w", err)
	}

	return &crypto.OrderEIP712{
		Salt:         o.Salt.ToBig(),
		Maker:        maker,
		Receiver:     receiver,
		MakerAsset:   makerAsset,
		TakerAsset:   takerAsset,
		MakingAmount: o.MakingAmount.ToBig(),
		TakingAmount: o.TakingAmount.ToBig(),
		MakerTraits:  o.MakerTraits.ToBig(),
	}, nil
}
