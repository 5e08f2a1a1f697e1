// Package seed loads baseline referential data from a YAML fixture.
// References between records are written as business codes.
package seed

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type Fixture struct {
	Currencies   []Currency    `yaml:"currencies"`
	ParamTypes   []ParamType   `yaml:"param_types"`
	Params       []Param       `yaml:"params"`
	Countries    []Country     `yaml:"countries"`
	Regions      []Region      `yaml:"regions"`
	Cities       []City        `yaml:"cities"`
	Partners     []Partner     `yaml:"partners"`
	Corridors    []Corridor    `yaml:"corridors"`
	PricingRules []PricingRule `yaml:"pricing_rules"`
	Contracts    []Contract    `yaml:"contracts"`
	Tiers        []Tier        `yaml:"tiers"`
	TaxRules     []TaxRule     `yaml:"tax_rules"`
}

type Currency struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals *int   `yaml:"decimals"`
}

type ParamType struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Param struct {
	Code      string `yaml:"code"`
	Type      string `yaml:"type"`
	Label     string `yaml:"label"`
	Value     string `yaml:"value"`
	SortOrder int    `yaml:"sort_order"`
}

type Country struct {
	Code        string `yaml:"code"`
	ISO2        string `yaml:"iso2"`
	Name        string `yaml:"name"`
	PhonePrefix string `yaml:"phone_prefix"`
	Currency    string `yaml:"currency"`
}

type Region struct {
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	Country string `yaml:"country"`
}

type City struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	Region     string `yaml:"region"`
	PostalCode string `yaml:"postal_code"`
}

type Partner struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	PartnerType string `yaml:"partner_type"`
	Country     string `yaml:"country"`
	Email       string `yaml:"email"`
}

type Corridor struct {
	Code        string `yaml:"code"`
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Currency    string `yaml:"currency"`
}

type PricingRule struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	FeeType     string `yaml:"fee_type"`
	FixedAmount string `yaml:"fixed_amount"`
	Percent     string `yaml:"percent"`
	MinFee      string `yaml:"min_fee"`
	MaxFee      string `yaml:"max_fee"`
}

type Contract struct {
	Code        string     `yaml:"code"`
	Partner     string     `yaml:"partner"`
	Description string     `yaml:"description"`
	StartDate   time.Time  `yaml:"start_date"`
	EndDate     *time.Time `yaml:"end_date"`
}

type Tier struct {
	Code        string `yaml:"code"`
	Contract    string `yaml:"contract"`
	PricingRule string `yaml:"pricing_rule"`
	Channel     string `yaml:"channel"`
	Service     string `yaml:"service"`
	Corridor    string `yaml:"corridor"`
	Affiliate   string `yaml:"affiliate"`
	MinAmount   string `yaml:"min_amount"`
	MaxAmount   string `yaml:"max_amount"`
	Priority    int    `yaml:"priority"`
}

type TaxRule struct {
	Code        string     `yaml:"code"`
	Name        string     `yaml:"name"`
	Country     string     `yaml:"country"`
	Service     string     `yaml:"service"`
	Rate        string     `yaml:"rate"`
	FixedAmount string     `yaml:"fixed_amount"`
	Base        string     `yaml:"base"`
	StartDate   time.Time  `yaml:"start_date"`
	EndDate     *time.Time `yaml:"end_date"`
}

// Load decodes a fixture. Unknown keys are rejected so that typos do not
// silently drop data.
func Load(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed fixture: %w", err)
	}
	return &f, nil
}
