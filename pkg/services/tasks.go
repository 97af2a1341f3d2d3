package services

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// TaskStatus mirrors the on-chain task state.
type TaskStatus uint8

const (
	TaskOpen TaskStatus = iota
	TaskAssigned
	TaskSubmitted
	TaskCompleted
	TaskCancelled
)

func (s TaskStatus) String() string {
	switch s {
	case TaskOpen:
		return "open"
	case TaskAssigned:
		return "assigned"
	case TaskSubmitted:
		return "submitted"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CreateTaskRequest is the raw input of CreateTask.
type CreateTaskRequest struct {
	Title       string
	Description string
	// Reward is a human readable token amount such as "12.5"
	Reward   string
	Deadline time.Time
	// Requirements is optional structured metadata stored with the task
	Requirements interface{}
}

// taskDetails is the document stored in the details field of a task.
type taskDetails struct {
	Description  string          `json:"description"`
	Requirements json.RawMessage `json:"requirements,omitempty"`
}

// TaskView is a decoded task.
type TaskView struct {
	ID           string          `json:"id"`
	Company      string          `json:"company"`
	Student      string          `json:"student,omitempty"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Requirements json.RawMessage `json:"requirements,omitempty"`
	RewardWei    string          `json:"rewardWei"`
	Reward       string          `json:"reward"`
	Deadline     time.Time       `json:"deadline"`
	Status       string          `json:"status"`
	Score        uint8           `json:"score"`
}

// TaskService drives the task lifecycle.
type TaskService struct {
	base
}

// NewTaskService creates a task service.
func NewTaskService(deps Deps) *TaskService {
	return &TaskService{base: newBase(deps)}
}

// CreateTask validates req and posts the task on behalf of identity.
func (s *TaskService) CreateTask(ctx context.Context, identity string, req CreateTaskRequest) Response {
	title, err := wallet.ValidateString(req.Title, "title", 3, 200)
	if err != nil {
		return Failure(err)
	}
	description, err := wallet.ValidateString(req.Description, "description", 10, 5000)
	if err != nil {
		return Failure(err)
	}
	reward, err := wallet.ValidateTokenAmount(req.Reward, RewardTokenDecimals, "reward")
	if err != nil {
		return Failure(err)
	}
	deadline, err := wallet.ValidateDeadlineAt(req.Deadline, "deadline", s.now())
	if err != nil {
		return Failure(err)
	}

	details := taskDetails{Description: description}
	if req.Requirements != nil {
		if details.Requirements, err = wallet.ValidateJSON(req.Requirements, "requirements"); err != nil {
			return Failure(err)
		}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return Failure(wallet.NewValidationError("requirements", err.Error()))
	}

	op := contracts.CreateTask(title, string(encoded), reward, big.NewInt(deadline.Unix()))
	return s.write(ctx, identity, op, http.StatusCreated)
}

// AssignTask assigns a task to a student.
func (s *TaskService) AssignTask(ctx context.Context, identity, taskID, student string) Response {
	id, err := wallet.ValidateID(taskID, "taskId")
	if err != nil {
		return Failure(err)
	}
	addr, err := wallet.ValidateAddress(student, "student")
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.AssignTask(id, addr), http.StatusOK)
}

// SubmitTask records a student's submission URI.
func (s *TaskService) SubmitTask(ctx context.Context, identity, taskID, submissionURI string) Response {
	id, err := wallet.ValidateID(taskID, "taskId")
	if err != nil {
		return Failure(err)
	}
	uri, err := wallet.ValidateString(submissionURI, "submissionUri", 1, 512)
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.SubmitTask(id, uri), http.StatusOK)
}

// CompleteTask scores a submitted task, releasing its reward.
func (s *TaskService) CompleteTask(ctx context.Context, identity, taskID string, score int) Response {
	id, err := wallet.ValidateID(taskID, "taskId")
	if err != nil {
		return Failure(err)
	}
	validScore, err := wallet.ValidateScore(score, "score")
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.CompleteTask(id, validScore), http.StatusOK)
}

// CancelTask cancels an open task.
func (s *TaskService) CancelTask(ctx context.Context, identity, taskID string) Response {
	id, err := wallet.ValidateID(taskID, "taskId")
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.CancelTask(id), http.StatusOK)
}

// GetTask reads and decodes a task.
func (s *TaskService) GetTask(ctx context.Context, taskID string) Response {
	id, err := wallet.ValidateID(taskID, "taskId")
	if err != nil {
		return Failure(err)
	}

	op := contracts.GetTask(id)
	out, err := s.read(ctx, op)
	if err != nil {
		return Failure(err)
	}

	d := newDecoder(op, out, 9)
	company := d.address(1)
	student := d.address(2)
	view := &TaskView{
		ID:      d.bigInt(0).String(),
		Company: company.Hex(),
		Title:   d.str(3),
	}
	rawDetails := d.str(4)
	reward := d.bigInt(5)
	deadline := d.bigInt(6)
	status := TaskStatus(d.u8(7))
	view.Score = d.u8(8)
	if err := d.Err(); err != nil {
		return Failure(err)
	}

	if company == (common.Address{}) {
		return Failure(notFound("task %s not found", id))
	}

	if student != (common.Address{}) {
		view.Student = student.Hex()
	}

	var details taskDetails
	if err := json.Unmarshal([]byte(rawDetails), &details); err == nil {
		view.Description = details.Description
		view.Requirements = details.Requirements
	} else {
		// tasks created outside this service store plain text
		view.Description = rawDetails
	}

	view.RewardWei = reward.String()
	view.Reward = decimal.NewFromBigInt(reward, -RewardTokenDecimals).String()
	view.Deadline = time.Unix(deadline.Int64(), 0).UTC()
	view.Status = status.String()

	return Success(http.StatusOK, view)
}
