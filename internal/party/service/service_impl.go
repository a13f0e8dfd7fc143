package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/auditcontext"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/party/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("party.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePartyRequest) (domain.Party, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return domain.Party{}, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Party{}, domain.ErrInvalidName
	}

	kind := domain.PartyKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = domain.PartyKindCustomer
	}
	if !kind.Valid() {
		return domain.Party{}, domain.ErrInvalidKind
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Party{}, domain.ErrInvalidEmail
	}

	// GSTIN is always 15 characters when present.
	gstin := strings.ToUpper(strings.TrimSpace(req.GSTIN))
	if gstin != "" && len(gstin) != 15 {
		return domain.Party{}, domain.ErrInvalidGSTIN
	}

	now := s.now()
	party := domain.Party{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Name:      name,
		Kind:      kind,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		GSTIN:     gstin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &party); err != nil {
		return domain.Party{}, err
	}

	return party, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPartyRequest) (domain.ListPartyResponse, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return domain.ListPartyResponse{}, domain.ErrInvalidUser
	}

	filter := domain.ListPartyFilter{
		Name: strings.TrimSpace(req.Name),
		Kind: domain.PartyKind(strings.ToLower(strings.TrimSpace(req.Kind))),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return domain.ListPartyResponse{}, domain.ErrInvalidKind
	}

	page := req.Pagination.Normalize()
	items, total, err := s.repo.List(ctx, s.db, userID, filter, page)
	if err != nil {
		return domain.ListPartyResponse{}, err
	}

	parties := make([]domain.Party, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		parties = append(parties, *item)
	}

	return domain.ListPartyResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Parties:  parties,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Party, error) {
	userID, ok := auditcontext.ActorUserIDFromContext(ctx)
	if !ok {
		return domain.Party{}, domain.ErrInvalidUser
	}

	partyID, err := s.parseID(id)
	if err != nil {
		return domain.Party{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, userID, partyID)
	if err != nil {
		return domain.Party{}, err
	}
	if item == nil {
		return domain.Party{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
