package txcontext

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// BlockEnv describes the environment of the block being assembled. It is
// provided by the caller of the executor and passed unchanged to the virtual
// machine for every transaction of the block.
type BlockEnv struct {
	ChainConfig *params.ChainConfig
	Number      *big.Int
	ParentHash  common.Hash
	Coinbase    common.Address
	Timestamp   uint64
	Difficulty  *big.Int
	GasLimit    uint64

	// BaseFee is only consulted once the fee-market upgrade is active for
	// Number; see IsLondon.
	BaseFee *big.Int
}

// IsLondon reports whether the fee-market upgrade is active for this block.
func (e *BlockEnv) IsLondon() bool {
	return e.ChainConfig != nil && e.ChainConfig.IsLondon(e.Number)
}
