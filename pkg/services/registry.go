package services

import (
	"context"
	"net/http"
	"time"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// CompanyView is a decoded company record.
type CompanyView struct {
	Address      string    `json:"address"`
	Name         string    `json:"name"`
	MetadataURI  string    `json:"metadataUri"`
	Verified     bool      `json:"verified"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// StudentView is a decoded student record.
type StudentView struct {
	Address        string `json:"address"`
	Name           string `json:"name"`
	MetadataURI    string `json:"metadataUri"`
	CompletedTasks string `json:"completedTasks"`
	Reputation     string `json:"reputation"`
}

// CompanyService manages the company registry.
type CompanyService struct {
	base
}

// NewCompanyService creates a company service.
func NewCompanyService(deps Deps) *CompanyService {
	return &CompanyService{base: newBase(deps)}
}

// Register adds a company.
func (s *CompanyService) Register(ctx context.Context, identity, address, name, metadataURI string) Response {
	addr, err := wallet.ValidateAddress(address, "address")
	if err != nil {
		return Failure(err)
	}
	validName, err := wallet.ValidateString(name, "name", 2, 100)
	if err != nil {
		return Failure(err)
	}
	uri, err := wallet.ValidateString(metadataURI, "metadataUri", 0, 512)
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.RegisterCompany(addr, validName, uri), http.StatusCreated)
}

// Verify marks a company as verified.
func (s *CompanyService) Verify(ctx context.Context, identity, address string) Response {
	addr, err := wallet.ValidateAddress(address, "address")
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.VerifyCompany(addr), http.StatusOK)
}

// Get reads a company record.
func (s *CompanyService) Get(ctx context.Context, address string) Response {
	addr, err := wallet.ValidateAddress(address, "address")
	if err != nil {
		return Failure(err)
	}

	op := contracts.GetCompany(addr)
	out, err := s.read(ctx, op)
	if err != nil {
		return Failure(err)
	}

	d := newDecoder(op, out, 4)
	view := &CompanyView{
		Address:     addr.Hex(),
		Name:        d.str(0),
		MetadataURI: d.str(1),
		Verified:    d.boolean(2),
	}
	registeredAt := d.bigInt(3)
	if err := d.Err(); err != nil {
		return Failure(err)
	}
	if registeredAt.Sign() == 0 {
		return Failure(notFound("company %s not found", addr.Hex()))
	}
	view.RegisteredAt = time.Unix(registeredAt.Int64(), 0).UTC()

	return Success(http.StatusOK, view)
}

// StudentService manages the student registry.
type StudentService struct {
	base
}

// NewStudentService creates a student service.
func NewStudentService(deps Deps) *StudentService {
	return &StudentService{base: newBase(deps)}
}

// Register adds a student.
func (s *StudentService) Register(ctx context.Context, identity, address, name, metadataURI string) Response {
	addr, err := wallet.ValidateAddress(address, "address")
	if err != nil {
		return Failure(err)
	}
	validName, err := wallet.ValidateString(name, "name", 2, 100)
	if err != nil {
		return Failure(err)
	}
	uri, err := wallet.ValidateString(metadataURI, "metadataUri", 0, 512)
	if err != nil {
		return Failure(err)
	}
	return s.write(ctx, identity, contracts.RegisterStudent(addr, validName, uri), http.StatusCreated)
}

// Get reads a student record.
func (s *StudentService) Get(ctx context.Context, address string) Response {
	addr, err := wallet.ValidateAddress(address, "address")
	if err != nil {
		return Failure(err)
	}

	op := contracts.GetStudent(addr)
	out, err := s.read(ctx, op)
	if err != nil {
		return Failure(err)
	}

	d := newDecoder(op, out, 4)
	view := &StudentView{
		Address:        addr.Hex(),
		Name:           d.str(0),
		MetadataURI:    d.str(1),
		CompletedTasks: d.bigInt(2).String(),
		Reputation:     d.bigInt(3).String(),
	}
	if err := d.Err(); err != nil {
		return Failure(err)
	}
	if view.Name == "" {
		return Failure(notFound("student %s not found", addr.Hex()))
	}

	return Success(http.StatusOK, view)
}
