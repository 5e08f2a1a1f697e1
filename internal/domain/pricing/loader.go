package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refdata/refdata/internal/platform/db"
)

// SnapshotLoader reads the pricing data of one partner on one corridor.
type SnapshotLoader interface {
	Load(ctx context.Context, partnerID, corridorID uuid.UUID) (*Snapshot, error)
}

type PGSnapshotLoader struct {
	pool *pgxpool.Pool
}

func NewPGSnapshotLoader(pool *pgxpool.Pool) *PGSnapshotLoader {
	return &PGSnapshotLoader{pool: pool}
}

const (
	corridorQuery = `
		SELECT c.id, c.code, c.enabled, c.origin_country_id, c.destination_country_id, c.currency_id,
		       cur.code, cur.decimals
		  FROM corridor c
		  JOIN currency cur ON cur.id = c.currency_id
		 WHERE c.id = $1 AND NOT c.deleted`

	contractsQuery = `
		SELECT id, code, enabled, partner_id, start_date, end_date, created_at
		  FROM contract
		 WHERE partner_id = $1 AND NOT deleted`

	tiersQuery = `
		SELECT t.id, t.code, t.enabled, t.contract_id, t.pricing_rule_id, t.channel_id,
		       t.affiliate_id, t.corridor_id, t.service_id, t.min_amount, t.max_amount, t.priority
		  FROM tier t
		  JOIN contract k ON k.id = t.contract_id
		 WHERE k.partner_id = $1 AND NOT k.deleted AND NOT t.deleted`

	rulesQuery = `
		SELECT r.id, r.code, r.enabled, r.fee_type, r.fixed_amount, r.percent, r.min_fee, r.max_fee
		  FROM pricing_rule r
		 WHERE NOT r.deleted AND r.id IN (
		       SELECT t.pricing_rule_id
		         FROM tier t
		         JOIN contract k ON k.id = t.contract_id
		        WHERE k.partner_id = $1 AND NOT k.deleted AND NOT t.deleted)`

	taxesQuery = `
		SELECT id, code, name, enabled, country_id, service_id, rate, fixed_amount, base, start_date, end_date
		  FROM tax_rule
		 WHERE NOT deleted
		   AND country_id = (SELECT origin_country_id FROM corridor WHERE id = $1)`
)

// Load sends the five snapshot queries in a single batch.
func (l *PGSnapshotLoader) Load(ctx context.Context, partnerID, corridorID uuid.UUID) (*Snapshot, error) {
	s := &Snapshot{}

	batch := &pgx.Batch{}
	batch.Queue(corridorQuery, corridorID).QueryRow(func(row pgx.Row) error {
		c := &Corridor{}
		err := row.Scan(&c.ID, &c.Code, &c.Enabled, &c.OriginCountryID, &c.DestinationCountryID,
			&c.CurrencyID, &s.Currency.Code, &s.Currency.Decimals)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan corridor: %w", err)
		}
		s.Currency.ID = c.CurrencyID
		s.Corridor = c
		return nil
	})
	batch.Queue(contractsQuery, partnerID).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			c := &Contract{}
			if err := rows.Scan(&c.ID, &c.Code, &c.Enabled, &c.PartnerID, &c.StartDate, &c.EndDate, &c.CreatedAt); err != nil {
				return fmt.Errorf("scan contract: %w", err)
			}
			s.Contracts = append(s.Contracts, c)
		}
		return rows.Err()
	})
	batch.Queue(tiersQuery, partnerID).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			t := &Tier{}
			if err := rows.Scan(&t.ID, &t.Code, &t.Enabled, &t.ContractID, &t.PricingRuleID, &t.ChannelID,
				&t.AffiliateID, &t.CorridorID, &t.ServiceID, &t.MinAmount, &t.MaxAmount, &t.Priority); err != nil {
				return fmt.Errorf("scan tier: %w", err)
			}
			s.Tiers = append(s.Tiers, t)
		}
		return rows.Err()
	})
	batch.Queue(rulesQuery, partnerID).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			r := &PricingRule{}
			if err := rows.Scan(&r.ID, &r.Code, &r.Enabled, &r.FeeType, &r.FixedAmount, &r.Percent,
				&r.MinFee, &r.MaxFee); err != nil {
				return fmt.Errorf("scan pricing rule: %w", err)
			}
			s.Rules = append(s.Rules, r)
		}
		return rows.Err()
	})
	batch.Queue(taxesQuery, corridorID).Query(func(rows pgx.Rows) error {
		for rows.Next() {
			r := &TaxRule{}
			if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Enabled, &r.CountryID, &r.ServiceID, &r.Rate,
				&r.FixedAmount, &r.TaxBase, &r.StartDate, &r.EndDate); err != nil {
				return fmt.Errorf("scan tax rule: %w", err)
			}
			s.Taxes = append(s.Taxes, r)
		}
		return rows.Err()
	})

	if err := db.Conn(ctx, l.pool).SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("load pricing snapshot: %w", err)
	}
	return s, nil
}
