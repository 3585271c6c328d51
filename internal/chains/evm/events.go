package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractCreationTopic is topic0 of ContractCreation(address indexed newContract, bytes32 indexed salt).
var ContractCreationTopic = crypto.Keccak256Hash([]byte("ContractCreation(address,bytes32)"))

// ContractCreationLog builds the log a factory emits after a successful deployment.
func ContractCreationLog(factory, deployed common.Address, guardedSalt [32]byte) *types.Log {
	return &types.Log{
		Address: factory,
		Topics: []common.Hash{
			ContractCreationTopic,
			common.BytesToHash(deployed.Bytes()),
			guardedSalt,
		},
		Data: []byte{},
	}
}

// DeployedAddress extracts the deployed contract address reported by a receipt.
// The factory's ContractCreation log wins; receipt.ContractAddress is the fallback
// for plain CREATE transactions.
func DeployedAddress(receipt *types.Receipt, factory common.Address) (common.Address, bool) {
	if receipt == nil {
		return common.Address{}, false
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != factory || len(l.Topics) < 2 {
			continue
		}
		if l.Topics[0] == ContractCreationTopic {
			return common.BytesToAddress(l.Topics[1].Bytes()), true
		}
	}
	if receipt.ContractAddress != (common.Address{}) {
		return receipt.ContractAddress, true
	}
	return common.Address{}, false
}
