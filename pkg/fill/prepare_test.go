package fill

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/limitfill/pkg/order"
	"github.com/uhyunpark/limitfill/pkg/router"
	"github.com/uhyunpark/limitfill/pkg/traits"
)

func TestPrepareDefaultTraits(t *testing.T) {
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	defaultTraits := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	defaultTraits.Or(defaultTraits, new(uint256.Int).Lsh(uint256.NewInt(1), 252))

	p, err := Prepare(&rec, defaultTraits, testHasher())
	require.NoError(t, err)
	assert.Equal(t, router.FillOrder, p.Call.Method)
	assert.Equal(t, 0, p.Call.TakerTraits.Cmp(defaultTraits.ToBig()), "default traits are passed through untouched")
	assert.True(t, p.Traits.MakerAmount)
	assert.Nil(t, p.Call.Args)
	assert.Equal(t, common.HexToHash(rec.Order.OrderHash), p.LocalHash)
	assert.Equal(t, p.RecordedHash, p.LocalHash)
	assert.Equal(t, usdt, p.TakerAsset())
}

func TestPrepareTakerOptionsWithoutArgs(t *testing.T) {
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	rec.Taker = &order.TakerOptions{UnwrapNative: true, Threshold: "1000"}

	p, err := Prepare(&rec, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, router.FillOrder, p.Call.Method)
	assert.Equal(t, common.Hash{}, p.LocalHash)

	decoded := traits.DecodeTaker(uint256.MustFromBig(p.Call.TakerTraits))
	assert.True(t, decoded.UnwrapNative)
	assert.False(t, decoded.HasTarget)
	assert.Equal(t, uint64(1000), decoded.Threshold.Uint64())
}

func TestPrepareExtensionLengthMatchesBytes(t *testing.T) {
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	ext := make([]byte, 184+9)
	for i := range ext {
		ext[i] = byte(i)
	}
	rec.Order.Extension = common.Bytes2Hex(ext)
	rec.Taker = &order.TakerOptions{Interaction: "0x0102"}

	p, err := Prepare(&rec, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, router.FillOrderArgs, p.Call.Method)
	assert.Equal(t, uint32(len(ext)), p.Traits.ExtensionLength)
	assert.Equal(t, uint32(2), p.Traits.InteractionLength)
	assert.False(t, p.Traits.HasTarget)
	assert.Equal(t, append(ext, 0x01, 0x02), p.Call.Args)
}

func TestPrepareOversizedInteraction(t *testing.T) {
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	rec.Taker = &order.TakerOptions{Interaction: common.Bytes2Hex(make([]byte, traits.MaxLength+1))}

	_, err := Prepare(&rec, nil, nil)
	require.ErrorIs(t, err, ErrArgsLengthMismatch)
	assert.Equal(t, KindArgsLengthMismatch, KindOf(err))
}
