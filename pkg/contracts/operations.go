// Package contracts describes the deployed contracts of the task platform and
// the closed set of operations the service layer may invoke on them.
package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ContractName identifies a logical contract in the deployment descriptor.
type ContractName string

const (
	// TaskManager owns the task lifecycle
	TaskManager ContractName = "TaskManager"
	// CompanyRegistry tracks companies allowed to post tasks
	CompanyRegistry ContractName = "CompanyRegistry"
	// StudentRegistry tracks students allowed to take tasks
	StudentRegistry ContractName = "StudentRegistry"
	// RewardToken is the ERC20 token paid out for completed tasks
	RewardToken ContractName = "RewardToken"
)

// Method is the ABI name of a contract function.
type Method string

const (
	MethodCreateTask   Method = "createTask"
	MethodAssignTask   Method = "assignTask"
	MethodSubmitTask   Method = "submitTask"
	MethodCompleteTask Method = "completeTask"
	MethodCancelTask   Method = "cancelTask"
	MethodGetTask      Method = "getTask"

	MethodRegisterCompany Method = "registerCompany"
	MethodVerifyCompany   Method = "verifyCompany"
	MethodGetCompany      Method = "getCompany"

	MethodRegisterStudent Method = "registerStudent"
	MethodGetStudent      Method = "getStudent"

	MethodMint        Method = "mint"
	MethodTransfer    Method = "transfer"
	MethodApprove     Method = "approve"
	MethodBalanceOf   Method = "balanceOf"
	MethodTotalSupply Method = "totalSupply"
)

// Operation is a fully typed call against one contract method. Values are
// only built through the constructors below so the argument list always
// matches the compiled-in ABI of the target method.
type Operation struct {
	Contract ContractName
	Method   Method
	Args     []interface{}
	ReadOnly bool
}

// String returns "Contract.method".
func (o Operation) String() string {
	return fmt.Sprintf("%s.%s", o.Contract, o.Method)
}

func write(contract ContractName, method Method, args ...interface{}) Operation {
	return Operation{Contract: contract, Method: method, Args: args}
}

func read(contract ContractName, method Method, args ...interface{}) Operation {
	return Operation{Contract: contract, Method: method, Args: args, ReadOnly: true}
}

// CreateTask posts a new task with a reward in token base units and a unix deadline.
func CreateTask(title, details string, reward, deadline *big.Int) Operation {
	return write(TaskManager, MethodCreateTask, title, details, reward, deadline)
}

// AssignTask assigns a task to a student.
func AssignTask(taskID *big.Int, student common.Address) Operation {
	return write(TaskManager, MethodAssignTask, taskID, student)
}

// SubmitTask records the student's submission reference for a task.
func SubmitTask(taskID *big.Int, submissionURI string) Operation {
	return write(TaskManager, MethodSubmitTask, taskID, submissionURI)
}

// CompleteTask scores a submitted task and releases its reward.
func CompleteTask(taskID *big.Int, score uint8) Operation {
	return write(TaskManager, MethodCompleteTask, taskID, score)
}

// CancelTask withdraws an unassigned task.
func CancelTask(taskID *big.Int) Operation {
	return write(TaskManager, MethodCancelTask, taskID)
}

// GetTask reads a task by id.
func GetTask(taskID *big.Int) Operation {
	return read(TaskManager, MethodGetTask, taskID)
}

// RegisterCompany registers a company account.
func RegisterCompany(company common.Address, name, metadataURI string) Operation {
	return write(CompanyRegistry, MethodRegisterCompany, company, name, metadataURI)
}

// VerifyCompany marks a registered company as verified.
func VerifyCompany(company common.Address) Operation {
	return write(CompanyRegistry, MethodVerifyCompany, company)
}

// GetCompany reads a company record.
func GetCompany(company common.Address) Operation {
	return read(CompanyRegistry, MethodGetCompany, company)
}

// RegisterStudent registers a student account.
func RegisterStudent(student common.Address, name, metadataURI string) Operation {
	return write(StudentRegistry, MethodRegisterStudent, student, name, metadataURI)
}

// GetStudent reads a student record.
func GetStudent(student common.Address) Operation {
	return read(StudentRegistry, MethodGetStudent, student)
}

// Mint creates reward tokens for an account.
func Mint(to common.Address, amount *big.Int) Operation {
	return write(RewardToken, MethodMint, to, amount)
}

// Transfer moves reward tokens from the signer to an account.
func Transfer(to common.Address, amount *big.Int) Operation {
	return write(RewardToken, MethodTransfer, to, amount)
}

// Approve sets a spender allowance for the signer's tokens.
func Approve(spender common.Address, amount *big.Int) Operation {
	return write(RewardToken, MethodApprove, spender, amount)
}

// BalanceOf reads the token balance of an account.
func BalanceOf(owner common.Address) Operation {
	return read(RewardToken, MethodBalanceOf, owner)
}

// TotalSupply reads the token supply.
func TotalSupply() Operation {
	return read(RewardToken, MethodTotalSupply)
}
