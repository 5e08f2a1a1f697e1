package geography

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/refdata/refdata/internal/platform/apierr"
	"github.com/refdata/refdata/internal/platform/crud"
)

type Service struct {
	Countries *crud.Service[*Country]
	Regions   *crud.Service[*Region]
	Cities    *crud.Service[*City]
	Sectors   *crud.Service[*Sector]
}

// NewService wires the geography services. currencies resolves the
// optional currency of a country.
func NewService(repos Repos, currencies crud.Lookup, opts ...crud.Option) *Service {
	s := &Service{}

	s.Countries = crud.NewService(CountryTable, repos.Countries, crud.Rules[*Country]{
		Normalize: func(c *Country) {
			c.ISO2 = strings.ToUpper(strings.TrimSpace(c.ISO2))
			c.PhonePrefix = strings.TrimSpace(c.PhonePrefix)
		},
		Validate: func(c *Country) error {
			if len(c.Code) != 3 || strings.IndexFunc(c.Code, notUpper) >= 0 {
				return apierr.Invalid("country code must be 3 letters (ISO-3166 alpha-3)")
			}
			return nil
		},
		References: func(ctx context.Context, c *Country) error {
			return crud.RequireRef(ctx, "currency_id", c.CurrencyID, currencies)
		},
	}, opts...)

	s.Regions = crud.NewService(RegionTable, repos.Regions, crud.Rules[*Region]{
		References: func(ctx context.Context, r *Region) error {
			return crud.RequireRef(ctx, "country_id", &r.CountryID, repos.Countries)
		},
	}, opts...)

	s.Cities = crud.NewService(CityTable, repos.Cities, crud.Rules[*City]{
		References: func(ctx context.Context, c *City) error {
			return crud.RequireRef(ctx, "region_id", &c.RegionID, repos.Regions)
		},
	}, opts...)

	s.Sectors = crud.NewService(SectorTable, repos.Sectors, crud.Rules[*Sector]{
		References: func(ctx context.Context, sec *Sector) error {
			return crud.RequireRef(ctx, "city_id", &sec.CityID, repos.Cities)
		},
	}, opts...)

	return s
}

func notUpper(r rune) bool { return r < 'A' || r > 'Z' }

// SectorInCity fails with ErrReference unless sectorID is a live sector of
// cityID.
func (s *Service) SectorInCity(ctx context.Context, sectorID, cityID uuid.UUID) error {
	sec, err := s.Sectors.Get(ctx, sectorID)
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return apierr.MissingReference("sector_id", sectorID)
		}
		return err
	}
	if sec.CityID != cityID {
		return fmt.Errorf("sector %s does not belong to city %s: %w", sec.Code, cityID, apierr.ErrReference)
	}
	return nil
}
