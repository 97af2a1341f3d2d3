package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract is a deployed contract: its address and parsed interface.
type Contract struct {
	Name    ContractName
	Address common.Address
	ABI     abi.ABI
}

// Registry is the read-only contract table loaded once at startup.
// It is safe for concurrent use.
type Registry struct {
	chainID   int64
	contracts map[ContractName]*Contract
}

// deploymentFile is the on-disk deployment descriptor.
//
//	{
//	  "chainId": 11155111,
//	  "contracts": {
//	    "TaskManager": {"address": "0x...", "abi": [...]},
//	    "RewardToken": {"address": "0x..."}
//	  }
//	}
//
// The abi entry is optional and overrides the compiled-in interface.
type deploymentFile struct {
	ChainID   int64                         `json:"chainId"`
	Contracts map[string]deploymentContract `json:"contracts"`
}

type deploymentContract struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi,omitempty"`
}

// LoadDeployment reads a deployment descriptor from disk.
func LoadDeployment(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deployment file: %w", err)
	}
	defer f.Close()

	return ParseDeployment(f)
}

// ParseDeployment parses a deployment descriptor.
func ParseDeployment(r io.Reader) (*Registry, error) {
	var file deploymentFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode deployment file: %w", err)
	}

	if len(file.Contracts) == 0 {
		return nil, fmt.Errorf("deployment file lists no contracts")
	}

	registry := &Registry{
		chainID:   file.ChainID,
		contracts: make(map[ContractName]*Contract, len(file.Contracts)),
	}

	for rawName, entry := range file.Contracts {
		name := ContractName(rawName)
		builtin, known := builtinABIs[name]
		if !known {
			return nil, fmt.Errorf("unknown contract %q in deployment file", rawName)
		}

		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("contract %s has invalid address %q", name, entry.Address)
		}

		source := builtin
		if len(bytes.TrimSpace(entry.ABI)) > 0 {
			source = string(entry.ABI)
		}

		parsed, err := abi.JSON(strings.NewReader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}

		registry.contracts[name] = &Contract{
			Name:    name,
			Address: common.HexToAddress(entry.Address),
			ABI:     parsed,
		}
	}

	return registry, nil
}

// NewRegistry builds a registry from addresses using the compiled-in ABIs.
func NewRegistry(chainID int64, addresses map[ContractName]common.Address) (*Registry, error) {
	registry := &Registry{
		chainID:   chainID,
		contracts: make(map[ContractName]*Contract, len(addresses)),
	}

	for name, address := range addresses {
		source, known := builtinABIs[name]
		if !known {
			return nil, fmt.Errorf("unknown contract %q", name)
		}
		parsed, err := abi.JSON(strings.NewReader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}
		registry.contracts[name] = &Contract{Name: name, Address: address, ABI: parsed}
	}

	return registry, nil
}

// ChainID returns the chain id declared by the deployment, 0 if unset.
func (r *Registry) ChainID() int64 {
	return r.chainID
}

// Contract looks up a deployed contract by name.
func (r *Registry) Contract(name ContractName) (*Contract, error) {
	contract, ok := r.contracts[name]
	if !ok {
		return nil, fmt.Errorf("contract %s is not deployed", name)
	}
	return contract, nil
}

// Pack resolves the target address and ABI-encodes the call data of op.
func (r *Registry) Pack(op Operation) (common.Address, []byte, error) {
	contract, err := r.Contract(op.Contract)
	if err != nil {
		return common.Address{}, nil, err
	}

	method, ok := contract.ABI.Methods[string(op.Method)]
	if !ok {
		return common.Address{}, nil, fmt.Errorf("contract %s has no method %s", op.Contract, op.Method)
	}
	if method.IsConstant() != op.ReadOnly {
		return common.Address{}, nil, fmt.Errorf("%s mutability does not match the ABI", op)
	}

	data, err := contract.ABI.Pack(string(op.Method), op.Args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack %s: %w", op, err)
	}

	return contract.Address, data, nil
}

// Unpack decodes the return data of op.
func (r *Registry) Unpack(op Operation, data []byte) ([]interface{}, error) {
	contract, err := r.Contract(op.Contract)
	if err != nil {
		return nil, err
	}

	out, err := contract.ABI.Unpack(string(op.Method), data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", op, err)
	}
	return out, nil
}
