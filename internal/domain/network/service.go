package network

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/domain/parameter"
	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/crud"
	"github.com/refdata/refdata/internal/platform/record"
)

// SectorChecker verifies that a sector lies in a city.
type SectorChecker interface {
	SectorInCity(ctx context.Context, sectorID, cityID uuid.UUID) error
}

// ParamChecker verifies parameter codes.
type ParamChecker interface {
	ParamCodeOfType(ctx context.Context, typeCode, code string) (bool, error)
}

// Deps are the lookups into other modules.
type Deps struct {
	Countries  crud.Lookup
	Cities     crud.Lookup
	Currencies crud.Lookup
	Sectors    SectorChecker
	Params     ParamChecker
}

type Service struct {
	Partners        *crud.Service[*Partner]
	Agencies        *crud.Service[*Agency]
	Banks           *crud.Service[*Bank]
	SupportAccounts *crud.Service[*SupportAccount]
}

func NewService(repos Repos, deps Deps, opts ...crud.Option) *Service {
	s := &Service{}

	s.Partners = crud.NewService(PartnerTable, repos.Partners, crud.Rules[*Partner]{
		Normalize: func(p *Partner) {
			p.PartnerType = record.NormalizeCode(p.PartnerType)
		},
		References: func(ctx context.Context, p *Partner) error {
			if err := crud.RequireRef(ctx, "country_id", &p.CountryID, deps.Countries); err != nil {
				return err
			}
			ok, err := deps.Params.ParamCodeOfType(ctx, parameter.TypePartnerType, p.PartnerType)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("partner_type %s is not a %s param: %w",
					p.PartnerType, parameter.TypePartnerType, apierr.ErrReference)
			}
			return nil
		},
	}, opts...)

	s.Agencies = crud.NewService(AgencyTable, repos.Agencies, crud.Rules[*Agency]{
		References: func(ctx context.Context, a *Agency) error {
			if err := crud.RequireRef(ctx, "partner_id", &a.PartnerID, repos.Partners); err != nil {
				return err
			}
			if err := crud.RequireRef(ctx, "city_id", &a.CityID, deps.Cities); err != nil {
				return err
			}
			if a.SectorID != nil {
				return deps.Sectors.SectorInCity(ctx, *a.SectorID, a.CityID)
			}
			return nil
		},
	}, opts...)

	s.Banks = crud.NewService(BankTable, repos.Banks, crud.Rules[*Bank]{
		Normalize: func(b *Bank) {
			b.SwiftCode = compact(b.SwiftCode)
		},
		Validate: func(b *Bank) error {
			if b.SwiftCode != "" && !validSwift(b.SwiftCode) {
				return apierr.Invalid("swift_code must be a BIC of 8 or 11 characters")
			}
			return nil
		},
		References: func(ctx context.Context, b *Bank) error {
			return crud.RequireRef(ctx, "country_id", &b.CountryID, deps.Countries)
		},
	}, opts...)

	s.SupportAccounts = crud.NewService(SupportAccountTable, repos.SupportAccounts, crud.Rules[*SupportAccount]{
		Normalize: func(a *SupportAccount) {
			a.IBAN = compact(a.IBAN)
			a.AccountNumber = compact(a.AccountNumber)
		},
		Validate: func(a *SupportAccount) error {
			if a.IBAN != "" && !validIBAN(a.IBAN) {
				return apierr.Invalid("iban is not a valid IBAN")
			}
			return nil
		},
		References: func(ctx context.Context, a *SupportAccount) error {
			if err := crud.RequireRef(ctx, "partner_id", &a.PartnerID, repos.Partners); err != nil {
				return err
			}
			if err := crud.RequireRef(ctx, "bank_id", &a.BankID, repos.Banks); err != nil {
				return err
			}
			return crud.RequireRef(ctx, "currency_id", &a.CurrencyID, deps.Currencies)
		},
	}, opts...)

	return s
}
