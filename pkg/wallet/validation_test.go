package wallet_test

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

func expectValidation(err error, field string) {
	ExpectWithOffset(1, err).To(HaveOccurred())
	env, ok := wallet.AsEnvelope(err)
	ExpectWithOffset(1, ok).To(BeTrue())
	ExpectWithOffset(1, env.Kind).To(Equal(wallet.KindValidation))
	ExpectWithOffset(1, env.Retryable).To(BeFalse())
	ExpectWithOffset(1, env.Field).To(Equal(field))
}

var _ = Describe("Validation", func() {
	Describe("ValidateAddress", func() {
		lower := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

		It("accepts lower case and checksummed input", func() {
			addr, err := wallet.ValidateAddress(lower, "to")
			Expect(err).NotTo(HaveOccurred())
			Expect(addr).To(Equal(common.HexToAddress(lower)))

			_, err = wallet.ValidateAddress(addr.Hex(), "to")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a bad checksum", func() {
			checksummed := common.HexToAddress(lower).Hex()
			// flip the case of every letter
			flipped := "0x" + strings.Map(func(r rune) rune {
				switch {
				case r >= 'a' && r <= 'f':
					return r - 'a' + 'A'
				case r >= 'A' && r <= 'F':
					return r - 'A' + 'a'
				}
				return r
			}, checksummed[2:])

			_, err := wallet.ValidateAddress(flipped, "to")
			expectValidation(err, "to")
		})

		DescribeTable("rejects malformed addresses",
			func(value string) {
				_, err := wallet.ValidateAddress(value, "to")
				expectValidation(err, "to")
			},
			Entry("empty", ""),
			Entry("no prefix", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"),
			Entry("too short", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1bea"),
			Entry("non hex", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beazz"),
		)
	})

	Describe("ValidateAmount", func() {
		It("parses integers and exponent notation exactly", func() {
			amount, err := wallet.ValidateAmount("1e18", "amount")
			Expect(err).NotTo(HaveOccurred())
			Expect(amount.String()).To(Equal("1000000000000000000"))

			amount, err = wallet.ValidateAmount("123456789012345678901234567890", "amount")
			Expect(err).NotTo(HaveOccurred())
			Expect(amount.String()).To(Equal("123456789012345678901234567890"))
		})

		DescribeTable("rejects invalid amounts",
			func(value string) {
				_, err := wallet.ValidateAmount(value, "amount")
				expectValidation(err, "amount")
			},
			Entry("empty", ""),
			Entry("zero", "0"),
			Entry("negative", "-5"),
			Entry("fractional", "1.5"),
			Entry("not numeric", "ten"),
			Entry("beyond uint256", "1e80"),
		)

		It("scales human token amounts by decimals", func() {
			amount, err := wallet.ValidateTokenAmount("1.5", 18, "amount")
			Expect(err).NotTo(HaveOccurred())
			Expect(amount.String()).To(Equal("1500000000000000000"))

			_, err = wallet.ValidateTokenAmount("0.0000001", 6, "amount")
			expectValidation(err, "amount")
		})
	})

	Describe("ValidateDeadlineAt", func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		It("accepts deadlines between one hour and thirty days ahead", func() {
			deadline, err := wallet.ValidateDeadlineAt(now.Add(2*time.Hour), "deadline", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(deadline).To(BeTemporally("==", now.Add(2*time.Hour)))

			_, err = wallet.ValidateDeadlineAt(now.Add(wallet.MaxDeadlineLead), "deadline", now)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects deadlines too soon or too far", func() {
			_, err := wallet.ValidateDeadlineAt(now.Add(30*time.Minute), "deadline", now)
			expectValidation(err, "deadline")

			_, err = wallet.ValidateDeadlineAt(now.Add(31*24*time.Hour), "deadline", now)
			expectValidation(err, "deadline")

			_, err = wallet.ValidateDeadlineAt(time.Time{}, "deadline", now)
			expectValidation(err, "deadline")
		})
	})

	Describe("ValidateScore", func() {
		It("accepts the closed range [0, 100]", func() {
			for _, score := range []int{0, 50, 100} {
				v, err := wallet.ValidateScore(score, "score")
				Expect(err).NotTo(HaveOccurred())
				Expect(int(v)).To(Equal(score))
			}
		})

		It("rejects scores outside the range", func() {
			_, err := wallet.ValidateScore(101, "score")
			expectValidation(err, "score")
			_, err = wallet.ValidateScore(-1, "score")
			expectValidation(err, "score")
		})
	})

	Describe("ValidateID", func() {
		It("parses decimal identifiers", func() {
			id, err := wallet.ValidateID("42", "taskId")
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal(big.NewInt(42)))
		})

		It("rejects signs and garbage", func() {
			_, err := wallet.ValidateID("-1", "taskId")
			expectValidation(err, "taskId")
			_, err = wallet.ValidateID("0x10", "taskId")
			expectValidation(err, "taskId")
		})
	})

	Describe("ValidateString", func() {
		It("trims and counts characters", func() {
			v, err := wallet.ValidateString("  Build a dApp  ", "title", 3, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("Build a dApp"))

			_, err = wallet.ValidateString("   ", "title", 3, 20)
			expectValidation(err, "title")

			_, err = wallet.ValidateString(strings.Repeat("é", 21), "title", 3, 20)
			expectValidation(err, "title")
		})
	})

	Describe("ValidateJSON", func() {
		It("compacts raw objects and arrays", func() {
			raw, err := wallet.ValidateJSON(`{ "skills": [ "go" ] }`, "metadata")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal(`{"skills":["go"]}`))
		})

		It("serializes maps and structs", func() {
			raw, err := wallet.ValidateJSON(map[string]int{"level": 3}, "metadata")
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Valid(raw)).To(BeTrue())
		})

		It("rejects scalars, invalid JSON and nil", func() {
			_, err := wallet.ValidateJSON(`"text"`, "metadata")
			expectValidation(err, "metadata")
			_, err = wallet.ValidateJSON(`{"a":`, "metadata")
			expectValidation(err, "metadata")
			_, err = wallet.ValidateJSON(42, "metadata")
			expectValidation(err, "metadata")
			_, err = wallet.ValidateJSON(nil, "metadata")
			expectValidation(err, "metadata")
		})

		It("rejects structs that encode as scalars", func() {
			_, err := wallet.ValidateJSON(time.Now(), "metadata")
			expectValidation(err, "metadata")
			_, err = wallet.ValidateJSON(big.NewInt(5), "metadata")
			expectValidation(err, "metadata")
		})

		It("rejects reference cycles", func() {
			cyclic := map[string]interface{}{}
			cyclic["self"] = cyclic

			_, err := wallet.ValidateJSON(cyclic, "metadata")
			expectValidation(err, "metadata")
			Expect(err.Error()).To(ContainSubstring("not serializable"))
		})
	})
})
