// Package storage persists user profiles and their sheet mappings in sqlite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"savingsrate/internal/core"
	"savingsrate/internal/log"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("profile not found")
	ErrInvalidProfile = errors.New("invalid profile")
)

const DefaultReferenceURL = "https://api.stlouisfed.org/fred/series/observations?series_id=PSAVERT&file_type=json"

type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open creates the database directory if needed, applies migrations and
// returns a ready store.
func Open(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(1)

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("Settings store ready", log.FieldOperation, log.OpMigrate, "path", dbPath, "schema_version", version)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectProfiles = `
SELECT u.id, u.name, u.is_self,
       p.income_source, p.savings_source,
       p.pay_date, p.savings_date, p.gross_income, p.employer_match,
       p.taxes_and_fees, p.savings_accounts,
       p.notes, p.total_balances, p.percent_fi_notes,
       p.goal, p.fi_number, p.war, p.show_average,
       p.reference_url, p.reference_api_key
FROM users u
JOIN profile_settings p ON p.user_id = u.id`

// Profiles returns every profile, self first, then by position and id.
func (s *Store) Profiles(ctx context.Context) ([]core.ProfileSettings, error) {
	rows, err := s.db.QueryContext(ctx, selectProfiles+` ORDER BY u.is_self DESC, u.position, u.id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var out []core.ProfileSettings
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// Profile returns one profile by id.
func (s *Store) Profile(ctx context.Context, id string) (core.ProfileSettings, error) {
	row := s.db.QueryRowContext(ctx, selectProfiles+` WHERE u.id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProfileSettings{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(sc scanner) (core.ProfileSettings, error) {
	var (
		p               core.ProfileSettings
		taxes, accounts string
		goal, fi        sql.NullFloat64
		self, war, avg  bool
	)
	err := sc.Scan(&p.ID, &p.Name, &self,
		&p.IncomeSource, &p.SavingsSource,
		&p.Mapping.PayDate, &p.Mapping.SavingsDate, &p.Mapping.GrossIncome, &p.Mapping.EmployerMatch,
		&taxes, &accounts,
		&p.Mapping.Notes, &p.Mapping.TotalBalance, &p.Mapping.PercentFINotes,
		&goal, &fi, &war, &avg,
		&p.ReferenceURL, &p.ReferenceAPIKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan profile: %w", err)
	}
	p.Self, p.War, p.ShowAverage = self, war, avg
	if err := json.Unmarshal([]byte(taxes), &p.Mapping.TaxesAndFees); err != nil {
		return p, fmt.Errorf("profile %s: decode taxes_and_fees: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(accounts), &p.Mapping.SavingsAccounts); err != nil {
		return p, fmt.Errorf("profile %s: decode savings_accounts: %w", p.ID, err)
	}
	if goal.Valid {
		p.Mapping.Goal = &goal.Float64
	}
	if fi.Valid {
		p.Mapping.FITarget = &fi.Float64
	}
	return p, nil
}

// Validate checks the fields a profile cannot run without.
func Validate(p core.ProfileSettings) error {
	var errs []string
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	if strings.TrimSpace(p.IncomeSource) == "" {
		errs = append(errs, "income source is required")
	}
	if strings.TrimSpace(p.SavingsSource) == "" {
		errs = append(errs, "savings source is required")
	}
	m := p.Mapping
	for _, c := range [][2]string{
		{"pay_date", m.PayDate},
		{"savings_date", m.SavingsDate},
		{"gross_income", m.GrossIncome},
		{"employer_match", m.EmployerMatch},
	} {
		if strings.TrimSpace(c[1]) == "" {
			errs = append(errs, c[0]+" column is required")
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(errs, "; "))
}

// SaveProfile inserts or replaces a profile. Saving a self profile demotes
// any other self profile to an enemy.
func (s *Store) SaveProfile(ctx context.Context, p core.ProfileSettings) error {
	if err := Validate(p); err != nil {
		return err
	}
	taxes, err := json.Marshal(nonNil(p.Mapping.TaxesAndFees))
	if err != nil {
		return fmt.Errorf("encode taxes_and_fees: %w", err)
	}
	accounts, err := json.Marshal(nonNil(p.Mapping.SavingsAccounts))
	if err != nil {
		return fmt.Errorf("encode savings_accounts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.Self {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET is_self = 0 WHERE is_self = 1 AND id <> ?`, p.ID); err != nil {
			return fmt.Errorf("demote previous self: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO users (id, name, is_self, position)
VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM users))
ON CONFLICT (id) DO UPDATE SET name = excluded.name, is_self = excluded.is_self, updated_at = CURRENT_TIMESTAMP`,
		p.ID, p.Name, p.Self)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", p.ID, err)
	}
	m := p.Mapping
	_, err = tx.ExecContext(ctx, `
INSERT OR REPLACE INTO profile_settings (
    user_id, income_source, savings_source,
    pay_date, savings_date, gross_income, employer_match,
    taxes_and_fees, savings_accounts,
    notes, total_balances, percent_fi_notes,
    goal, fi_number, war, show_average,
    reference_url, reference_api_key
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.IncomeSource, p.SavingsSource,
		m.PayDate, m.SavingsDate, m.GrossIncome, m.EmployerMatch,
		string(taxes), string(accounts),
		m.Notes, m.TotalBalance, m.PercentFINotes,
		nullFloat(m.Goal), nullFloat(m.FITarget), p.War, p.ShowAverage,
		p.ReferenceURL, p.ReferenceAPIKey)
	if err != nil {
		return fmt.Errorf("upsert settings %s: %w", p.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile %s: %w", p.ID, err)
	}

	s.logger.InfoContext(ctx, "Profile saved", log.FieldProfileID, p.ID, "self", p.Self)
	return nil
}

// SetWar toggles a profile's war flag.
func (s *Store) SetWar(ctx context.Context, id string, on bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profile_settings SET war = ? WHERE user_id = ?`, on, id)
	if err != nil {
		return fmt.Errorf("set war for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteProfile removes a profile and its settings.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_settings WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete settings %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// EnsureDefaults seeds the default self profile when the store has none.
// It reports whether anything was written.
func (s *Store) EnsureDefaults(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_self = 1`).Scan(&n); err != nil {
		return false, fmt.Errorf("count self profiles: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if err := s.SaveProfile(ctx, DefaultSelfProfile()); err != nil {
		return false, fmt.Errorf("seed default profile: %w", err)
	}
	s.logger.InfoContext(ctx, "Seeded default profile")
	return true, nil
}

// DefaultSelfProfile is the profile written on first start: example sheets
// with a US payroll layout and the FRED personal saving rate as reference.
func DefaultSelfProfile() core.ProfileSettings {
	return core.ProfileSettings{
		ID:            "self",
		Name:          "User",
		Self:          true,
		War:           false,
		ShowAverage:   true,
		IncomeSource:  "csv/income-example.xlsx",
		SavingsSource: "csv/savings-example.xlsx",
		Mapping: core.FieldMapping{
			PayDate:         "Date",
			SavingsDate:     "Date",
			GrossIncome:     "Gross Pay",
			EmployerMatch:   "Employer Match",
			TaxesAndFees:    []string{"OASDI", "Medicare", "Federal Withholding", "State Tax"},
			SavingsAccounts: []string{"Scottrade", "Vanguard 403b", "Vanguard Roth"},
		},
		ReferenceURL: DefaultReferenceURL,
	}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
