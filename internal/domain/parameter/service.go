package parameter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/record"
)

type Service struct {
	Currencies        *crud.Service[*Currency]
	ParamTypes        *crud.Service[*ParamType]
	Params            *crud.Service[*Param]
	IdentityDocuments *crud.Service[*IdentityDocument]

	params ParamRepository
}

// NewService wires the parameter services. countries resolves the
// country of identity documents.
func NewService(repos Repos, countries crud.Lookup, opts ...crud.Option) *Service {
	s := &Service{params: repos.Params}

	s.Currencies = crud.NewService(CurrencyTable, repos.Currencies, crud.Rules[*Currency]{
		Validate: func(c *Currency) error {
			if !isAlpha(c.Code, 3) {
				return apierr.Invalid("currency code must be 3 letters (ISO-4217)")
			}
			return nil
		},
	}, opts...)

	s.ParamTypes = crud.NewService(ParamTypeTable, repos.ParamTypes, crud.Rules[*ParamType]{}, opts...)

	s.Params = crud.NewService(ParamTable, repos.Params, crud.Rules[*Param]{
		References: func(ctx context.Context, p *Param) error {
			return crud.RequireRef(ctx, "param_type_id", &p.ParamTypeID, repos.ParamTypes)
		},
		Changing: s.paramChanging,
		Deleting: s.partnerTypeFree,
	}, opts...)

	s.IdentityDocuments = crud.NewService(IdentityDocumentTable, repos.IdentityDocuments, crud.Rules[*IdentityDocument]{
		Validate: func(d *IdentityDocument) error {
			if err := d.check(); err != nil {
				return apierr.Invalid("%v", err)
			}
			return nil
		},
		References: func(ctx context.Context, d *IdentityDocument) error {
			return crud.RequireRef(ctx, "country_id", &d.CountryID, countries)
		},
	}, opts...)

	return s
}

// paramChanging keeps referencing rows consistent: tiers and tax rules hold
// the param by id, partners hold a PARTNER_TYPE param by code.
func (s *Service) paramChanging(ctx context.Context, cur, next *Param) error {
	if cur.ParamTypeID != next.ParamTypeID {
		used, err := s.params.Referenced(ctx, cur.ID)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("param %s: param_type_id cannot change while referenced: %w", cur.Code, apierr.ErrInUse)
		}
	}
	if cur.ParamTypeID == next.ParamTypeID && cur.Code == next.Code {
		return nil
	}
	return s.partnerTypeFree(ctx, cur)
}

// partnerTypeFree fails with ErrInUse when p is a PARTNER_TYPE param whose
// code a live partner carries.
func (s *Service) partnerTypeFree(ctx context.Context, p *Param) error {
	ok, err := s.params.OfType(ctx, p.ID, TypePartnerType)
	if err != nil || !ok {
		return err
	}
	used, err := s.params.PartnerTypeUsed(ctx, p.Code)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("param %s: partners use this partner type: %w", p.Code, apierr.ErrInUse)
	}
	return nil
}

// ValidateDocumentNumber checks number against the rules of document id.
func (s *Service) ValidateDocumentNumber(ctx context.Context, id uuid.UUID, number string) (NumberCheck, error) {
	doc, err := s.IdentityDocuments.Get(ctx, id)
	if err != nil {
		return NumberCheck{}, err
	}
	if !doc.Enabled {
		return NumberCheck{Reason: "document type is disabled"}, nil
	}
	return doc.CheckNumber(strings.TrimSpace(number)), nil
}

// ParamOfType reports whether id is a live param of type typeCode.
func (s *Service) ParamOfType(ctx context.Context, id uuid.UUID, typeCode string) (bool, error) {
	return s.params.OfType(ctx, id, typeCode)
}

// ParamCodeOfType reports whether code is a live param of type typeCode.
func (s *Service) ParamCodeOfType(ctx context.Context, typeCode, code string) (bool, error) {
	return s.params.CodeOfType(ctx, typeCode, record.NormalizeCode(code))
}

// RequireParamOfType fails with ErrReference unless id is a live param of
// the given type. A nil id is accepted.
func (s *Service) RequireParamOfType(ctx context.Context, field string, id *uuid.UUID, typeCode string) error {
	if id == nil {
		return nil
	}
	ok, err := s.ParamOfType(ctx, *id, typeCode)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s is not a %s param: %w", field, *id, typeCode, apierr.ErrReference)
	}
	return nil
}

func isAlpha(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
