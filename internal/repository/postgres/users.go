package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/repository"
)

var accountColumns = []string{
	"id",
	"email",
	"name",
	"phone",
	"password_hash",
	"auth_provider",
	"role",
	"is_verified",
	"otp_code",
	"otp_expiry",
	"avatar",
	"created_at",
	"updated_at",
}

var sortColumns = map[domain.SortField]string{
	domain.SortByCreatedAt: "created_at",
	domain.SortByUpdatedAt: "updated_at",
	domain.SortByEmail:     "email",
	domain.SortByName:      "name",
}

// AccountRepository stores accounts in auth.users. Every state transition that depends on
// the current row (code checks, verification) is a single conditional statement.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository accepts a pool, a transaction or a pgxmock pool.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			domain.NormalizeEmail(account.Email),
			account.Name,
			account.Phone,
			account.PasswordHash,
			string(account.Provider),
			string(account.Role),
			account.IsVerified,
			account.OTPCode,
			account.OTPExpiry,
			account.Avatar,
			account.CreatedAt,
			account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert account: %w", repository.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves an account by e-mail address, ignoring case.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"email": domain.NormalizeEmail(email)})
}

func (r *AccountRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return account, nil
}

// RefreshPendingRegistration rotates the password hash and one-time code of an account that
// is still unverified. It reports repository.ErrConditionFailed when the account was verified
// in the meantime.
func (r *AccountRepository) RefreshPendingRegistration(ctx context.Context, update port.PendingRegistration) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", update.PasswordHash).
		Set("name", squirrel.Expr("COALESCE(?, name)", update.Name)).
		Set("phone", squirrel.Expr("COALESCE(?, phone)", update.Phone)).
		Set("otp_code", update.OTPCode).
		Set("otp_expiry", update.OTPExpiry).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": update.AccountID, "is_verified": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build refresh registration sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("refresh registration: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrConditionFailed
	}

	return nil
}

// SetOTP overwrites the outstanding one-time code of an account.
func (r *AccountRepository) SetOTP(ctx context.Context, id string, code string, expiry time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("otp_code", code).
		Set("otp_expiry", expiry).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set otp sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ConsumeVerificationOTP marks the account verified and clears its code in one statement,
// provided the code matches, is unexpired at now and the account is not yet verified.
func (r *AccountRepository) ConsumeVerificationOTP(ctx context.Context, email, code string, now time.Time) (*domain.Account, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("is_verified", true).
		Set("otp_code", nil).
		Set("otp_expiry", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{
			"email":       domain.NormalizeEmail(email),
			"otp_code":    code,
			"is_verified": false,
		}).
		Where(squirrel.Gt{"otp_expiry": now}).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume verification otp sql: %w", err)
	}

	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrConditionFailed
		}
		return nil, fmt.Errorf("consume verification otp: %w", err)
	}

	return account, nil
}

// ConsumeResetOTP replaces the password hash and clears the code in one statement, provided
// the code matches and is unexpired at now.
func (r *AccountRepository) ConsumeResetOTP(ctx context.Context, email, code, passwordHash string, now time.Time) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("password_hash", passwordHash).
		Set("otp_code", nil).
		Set("otp_expiry", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{
			"email":         domain.NormalizeEmail(email),
			"otp_code":      code,
			"auth_provider": string(domain.ProviderLocal),
		}).
		Where(squirrel.Gt{"otp_expiry": now}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume reset otp sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume reset otp: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrConditionFailed
	}

	return nil
}

// List returns one page of accounts matching the filter.
func (r *AccountRepository) List(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[domain.SortByCreatedAt]
	}
	direction := "DESC"
	if filter.SortOrder == domain.SortAsc {
		direction = "ASC"
	}

	query := applyAccountFilter(r.builder.Select(accountColumns...).From(usersTable), filter).
		OrderBy(fmt.Sprintf("%s %s", column, direction), "id ASC")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list accounts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// Count returns how many accounts match the filter, ignoring paging.
func (r *AccountRepository) Count(ctx context.Context, filter domain.AccountFilter) (int, error) {
	stmt, args, err := applyAccountFilter(r.builder.Select("COUNT(*)").From(usersTable), filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count accounts sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan accounts count: %w", err)
	}

	return int(count), nil
}

func applyAccountFilter(query squirrel.SelectBuilder, filter domain.AccountFilter) squirrel.SelectBuilder {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query = query.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"email": pattern},
			squirrel.ILike{"phone": pattern},
		})
	}

	if filter.Role != nil {
		query = query.Where(squirrel.Eq{"role": string(*filter.Role)})
	}

	return query
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account  domain.Account
		provider string
		role     string
	)

	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.Phone,
		&account.PasswordHash,
		&provider,
		&role,
		&account.IsVerified,
		&account.OTPCode,
		&account.OTPExpiry,
		&account.Avatar,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}

	account.Provider = domain.Provider(provider)
	account.Role = domain.Role(role)

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
