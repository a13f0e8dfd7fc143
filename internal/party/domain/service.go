package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type ListPartyRequest struct {
	pagination.Pagination
	Name string `form:"name"`
	Kind string `form:"kind"`
}

type ListPartyFilter struct {
	Name string
	Kind PartyKind
}

type ListPartyResponse struct {
	pagination.PageInfo
	Parties []Party `json:"parties"`
}

type CreatePartyRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	GSTIN string `json:"gstin"`
}

type Service interface {
	Create(context.Context, CreatePartyRequest) (Party, error)
	List(context.Context, ListPartyRequest) (ListPartyResponse, error)
	GetByID(ctx context.Context, id string) (Party, error)
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidKind  = errors.New("invalid_kind")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidGSTIN = errors.New("invalid_gstin")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
)
