package contracts

// taskManagerABI is the interface of the TaskManager contract. Tasks are
// posted by verified companies, assigned to a registered student, submitted
// and finally scored.
const taskManagerABI = `[
	{
		"inputs": [
			{"name": "title", "type": "string"},
			{"name": "details", "type": "string"},
			{"name": "reward", "type": "uint256"},
			{"name": "deadline", "type": "uint256"}
		],
		"name": "createTask",
		"outputs": [{"name": "taskId", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "taskId", "type": "uint256"},
			{"name": "student", "type": "address"}
		],
		"name": "assignTask",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "taskId", "type": "uint256"},
			{"name": "submissionURI", "type": "string"}
		],
		"name": "submitTask",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "taskId", "type": "uint256"},
			{"name": "score", "type": "uint8"}
		],
		"name": "completeTask",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "taskId", "type": "uint256"}],
		"name": "cancelTask",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "taskId", "type": "uint256"}],
		"name": "getTask",
		"outputs": [
			{"name": "id", "type": "uint256"},
			{"name": "company", "type": "address"},
			{"name": "student", "type": "address"},
			{"name": "title", "type": "string"},
			{"name": "details", "type": "string"},
			{"name": "reward", "type": "uint256"},
			{"name": "deadline", "type": "uint256"},
			{"name": "status", "type": "uint8"},
			{"name": "score", "type": "uint8"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// companyRegistryABI is the interface of the CompanyRegistry contract.
const companyRegistryABI = `[
	{
		"inputs": [
			{"name": "company", "type": "address"},
			{"name": "name", "type": "string"},
			{"name": "metadataURI", "type": "string"}
		],
		"name": "registerCompany",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "company", "type": "address"}],
		"name": "verifyCompany",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "company", "type": "address"}],
		"name": "getCompany",
		"outputs": [
			{"name": "name", "type": "string"},
			{"name": "metadataURI", "type": "string"},
			{"name": "verified", "type": "bool"},
			{"name": "registeredAt", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// studentRegistryABI is the interface of the StudentRegistry contract.
const studentRegistryABI = `[
	{
		"inputs": [
			{"name": "student", "type": "address"},
			{"name": "name", "type": "string"},
			{"name": "metadataURI", "type": "string"}
		],
		"name": "registerStudent",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "student", "type": "address"}],
		"name": "getStudent",
		"outputs": [
			{"name": "name", "type": "string"},
			{"name": "metadataURI", "type": "string"},
			{"name": "completedTasks", "type": "uint256"},
			{"name": "reputation", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// rewardTokenABI is the ERC20 subset of the RewardToken contract plus the
// owner-only mint entry point.
const rewardTokenABI = `[
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "mint",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "totalSupply",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// builtinABIs holds the compiled-in interface for every known contract.
var builtinABIs = map[ContractName]string{
	TaskManager:     taskManagerABI,
	CompanyRegistry: companyRegistryABI,
	StudentRegistry: studentRegistryABI,
	RewardToken:     rewardTokenABI,
}
