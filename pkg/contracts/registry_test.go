package contracts_test

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
)

const deployment = `{
	"chainId": 1337,
	"contracts": {
		"TaskManager": {"address": "0x1000000000000000000000000000000000000001"},
		"RewardToken": {"address": "0x2000000000000000000000000000000000000002"}
	}
}`

var _ = Describe("Registry", func() {
	var registry *contracts.Registry

	BeforeEach(func() {
		var err error
		registry, err = contracts.ParseDeployment(strings.NewReader(deployment))
		Expect(err).NotTo(HaveOccurred())
	})

	It("loads addresses and the chain id from the descriptor", func() {
		Expect(registry.ChainID()).To(Equal(int64(1337)))

		token, err := registry.Contract(contracts.RewardToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(token.Address).To(Equal(common.HexToAddress("0x2000000000000000000000000000000000000002")))
	})

	It("rejects contracts missing from the deployment", func() {
		_, err := registry.Contract(contracts.StudentRegistry)
		Expect(err).To(MatchError(ContainSubstring("not deployed")))
	})

	It("rejects unknown contract names", func() {
		_, err := contracts.ParseDeployment(strings.NewReader(`{"contracts": {"Vault": {"address": "0x1000000000000000000000000000000000000001"}}}`))
		Expect(err).To(MatchError(ContainSubstring("unknown contract")))
	})

	It("rejects malformed addresses", func() {
		_, err := contracts.ParseDeployment(strings.NewReader(`{"contracts": {"TaskManager": {"address": "0x12"}}}`))
		Expect(err).To(MatchError(ContainSubstring("invalid address")))
	})

	It("packs typed operations with the method selector", func() {
		to := common.HexToAddress("0x3000000000000000000000000000000000000003")
		addr, data, err := registry.Pack(contracts.Mint(to, big.NewInt(1000)))
		Expect(err).NotTo(HaveOccurred())
		Expect(addr).To(Equal(common.HexToAddress("0x2000000000000000000000000000000000000002")))

		token, _ := registry.Contract(contracts.RewardToken)
		Expect(data[:4]).To(Equal(token.ABI.Methods["mint"].ID))
		Expect(data).To(HaveLen(4 + 32 + 32))
	})

	It("refuses arguments that do not match the ABI", func() {
		op := contracts.Operation{Contract: contracts.RewardToken, Method: contracts.MethodMint, Args: []interface{}{"not-an-address", 1}}
		_, _, err := registry.Pack(op)
		Expect(err).To(MatchError(ContainSubstring("failed to pack")))
	})

	It("refuses a read operation against a state-changing method", func() {
		op := contracts.Operation{Contract: contracts.RewardToken, Method: contracts.MethodMint, ReadOnly: true}
		_, _, err := registry.Pack(op)
		Expect(err).To(MatchError(ContainSubstring("mutability")))
	})

	It("round-trips read return data", func() {
		token, _ := registry.Contract(contracts.RewardToken)
		encoded, err := token.ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(42))
		Expect(err).NotTo(HaveOccurred())

		out, err := registry.Unpack(contracts.BalanceOf(common.Address{}), encoded)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0]).To(Equal(big.NewInt(42)))
	})

	It("builds registries from compiled-in ABIs", func() {
		reg, err := contracts.NewRegistry(5, map[contracts.ContractName]common.Address{
			contracts.TaskManager: common.HexToAddress("0x1"),
		})
		Expect(err).NotTo(HaveOccurred())
		_, data, err := reg.Pack(contracts.CompleteTask(big.NewInt(7), 88))
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(HaveLen(4 + 64))
	})
})
