package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when an account or policy is absent.
var ErrNotFound = errors.New("not found")

// AccessRights describes the access policy of a user account on a share.
type AccessRights struct {
	ShareName    string
	Username     string
	ReadAccess   bool
	WriteAccess  bool
	DeleteAccess bool
}

// GetCredentials retrieves the password of the given account.
func (db *Database) GetCredentials(username string) (password string, err error) {
	err = db.txn(func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			SELECT password
			FROM accounts
			WHERE username = $1
		`
		err := tx.QueryRow(ctx, query, strings.ToLower(username)).Scan(&password)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("failed to retrieve account: %w", err)
		}
		return nil
	})
	return
}

// GetAccounts lists all stored accounts.
func (db *Database) GetAccounts() (accounts map[string]string, err error) {
	accounts = make(map[string]string)
	err = db.txn(func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			SELECT username, password
			FROM accounts
		`
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var u, p string
			if err := rows.Scan(&u, &p); err != nil {
				return fmt.Errorf("failed to scan account: %w", err)
			}
			accounts[u] = p
		}
		return rows.Err()
	})
	return
}

// AddAccount stores or updates an account.
func (db *Database) AddAccount(username, password string) error {
	return db.txn(func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			INSERT INTO accounts (username, password)
			VALUES ($1, $2)
			ON CONFLICT (username) DO UPDATE
			SET password = EXCLUDED.password
		`
		_, err := tx.Exec(ctx, query, strings.ToLower(username), password)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		return nil
	})
}

// RemoveAccount deletes an account and its policies.
func (db *Database) RemoveAccount(username string) error {
	return db.txn(func(ctx context.Context, tx pgx.Tx) error {
		username = strings.ToLower(username)
		if _, err := tx.Exec(ctx, `DELETE FROM policies WHERE account = $1`, username); err != nil {
			return fmt.Errorf("failed to remove policies: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE username = $1`, username); err != nil {
			return fmt.Errorf("failed to remove account: %w", err)
		}
		return nil
	})
}

// GetAccessRights retrieves the access policy for the given account on the
// given share.
func (db *Database) GetAccessRights(shareName, username string) (ar AccessRights, err error) {
	err = db.txn(func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			SELECT read_access, write_access, delete_access
			FROM policies
			WHERE share_name = $1 AND account = $2
		`
		var ra, wa, da bool
		err := tx.QueryRow(ctx, query, shareName, strings.ToLower(username)).Scan(&ra, &wa, &da)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("failed to retrieve policy: %w", err)
		}
		ar = AccessRights{
			ShareName:    shareName,
			Username:     username,
			ReadAccess:   ra,
			WriteAccess:  wa,
			DeleteAccess: da,
		}
		return nil
	})
	return
}

// SetAccessRights stores the access policy in the database.
func (db *Database) SetAccessRights(ar AccessRights) error {
	return db.txn(func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			INSERT INTO policies (share_name, account, read_access, write_access, delete_access)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (share_name, account) DO UPDATE
			SET read_access = EXCLUDED.read_access,
				write_access = EXCLUDED.write_access,
				delete_access = EXCLUDED.delete_access
		`
		_, err := tx.Exec(ctx, query, ar.ShareName, strings.ToLower(ar.Username), ar.ReadAccess, ar.WriteAccess, ar.DeleteAccess)
		if err != nil {
			return fmt.Errorf("failed to update policy: %w", err)
		}
		return nil
	})
}

// RemoveAccessRights removes the access policy to the share for the given
// account.
func (db *Database) RemoveAccessRights(shareName, username string) error {
	return db.txn(func(ctx context.Context, tx pgx.Tx) error {
		const query = `
			DELETE FROM policies
			WHERE share_name = $1 AND account = $2
		`
		_, err := tx.Exec(ctx, query, shareName, strings.ToLower(username))
		if err != nil {
			return fmt.Errorf("failed to remove policy: %w", err)
		}
		return nil
	})
}
