package store

import (
	"context"
	"fmt"

	"github.com/trackship/server/src/auth"
)

type seedCountry struct {
	name   string
	code   string
	states []seedState
}

type seedState struct {
	name string
	code string
}

var seedCountries = []seedCountry{
	{name: "United States", code: "US", states: []seedState{
		{"California", "CA"}, {"New York", "NY"}, {"Texas", "TX"},
	}},
	{name: "Canada", code: "CA", states: []seedState{
		{"Ontario", "ON"}, {"Quebec", "QC"}, {"British Columbia", "BC"},
	}},
	{name: "United Kingdom", code: "GB", states: []seedState{
		{"England", "ENG"}, {"Scotland", "SCT"}, {"Wales", "WLS"},
	}},
	{name: "Australia", code: "AU"},
	{name: "Germany", code: "DE"},
}

// Seed inserts reference data and the initial admin account. Inserts
// are idempotent, so re-running against a populated database is safe.
func (p *Postgres) Seed(ctx context.Context, adminEmail, adminPassword string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO users (email, password, role) VALUES ($1, $2, 'admin')
		ON CONFLICT (email) DO NOTHING`,
		adminEmail, hash,
	)
	if err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}

	for _, country := range seedCountries {
		_, err := tx.Exec(ctx, `
			INSERT INTO countries (name, code) VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING`,
			country.name, country.code,
		)
		if err != nil {
			return fmt.Errorf("seeding country %s: %w", country.code, err)
		}

		if len(country.states) == 0 {
			continue
		}
		var countryID int
		if err := tx.QueryRow(ctx, `SELECT id FROM countries WHERE code = $1`, country.code).Scan(&countryID); err != nil {
			return fmt.Errorf("looking up country %s: %w", country.code, err)
		}
		for _, state := range country.states {
			_, err := tx.Exec(ctx, `
				INSERT INTO states (name, code, country_id) VALUES ($1, $2, $3)
				ON CONFLICT (code, country_id) DO NOTHING`,
				state.name, state.code, countryID,
			)
			if err != nil {
				return fmt.Errorf("seeding state %s: %w", state.code, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	p.logger.Info().Msg("seed data applied")
	return nil
}
