package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storefront.chat/relay/core/db"
	"storefront.chat/relay/internal/model"
)

const companyColumns = `id, name, page_id, page_access_token, ai_enabled, system_prompt, created_at, updated_at`

type companyStore struct {
	q db.Querier
}

func newCompanyStore(q db.Querier) CompanyStore {
	return &companyStore{q: q}
}

func (s *companyStore) GetByID(ctx context.Context, id int64) (*model.Company, error) {
	row := s.q.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	return scanCompany(row)
}

func (s *companyStore) GetByPageID(ctx context.Context, pageID string) (*model.Company, error) {
	row := s.q.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE page_id = $1`, pageID)
	return scanCompany(row)
}

func (s *companyStore) Create(ctx context.Context, company *model.Company) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO companies (id, name, page_id, page_access_token, ai_enabled, system_prompt)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+companyColumns,
		company.ID, company.Name, company.PageID, company.PageAccessToken, company.AIEnabled, company.SystemPrompt)

	created, err := scanCompany(row)
	if err != nil {
		return fmt.Errorf("creating company: %w", err)
	}
	*company = *created
	return nil
}

func (s *companyStore) Update(ctx context.Context, company *model.Company) error {
	row := s.q.QueryRow(ctx, `
		UPDATE companies
		SET name = $2, page_id = $3, page_access_token = $4, ai_enabled = $5, system_prompt = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+companyColumns,
		company.ID, company.Name, company.PageID, company.PageAccessToken, company.AIEnabled, company.SystemPrompt)

	updated, err := scanCompany(row)
	if err != nil {
		return err
	}
	*company = *updated
	return nil
}

func scanCompany(row pgx.Row) (*model.Company, error) {
	var c model.Company
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.PageID,
		&c.PageAccessToken,
		&c.AIEnabled,
		&c.SystemPrompt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
