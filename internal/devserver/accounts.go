package devserver

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/butterchat/butterchat/internal/types"
)

// Account is a seeded development identity. The interactive grant
// flow resolves to the first account; the password login endpoint
// matches any of them by email.
type Account struct {
	User         types.User
	Email        string
	PasswordHash string
}

// DefaultAccounts seeds two dev identities so two clients can chat
// with distinct user ids. Each account's password is its user id.
func DefaultAccounts() ([]Account, error) {
	seeds := []struct {
		id, name, email string
	}{
		{"dev-alice", "Alice", "alice@butterchat.dev"},
		{"dev-bob", "Bob", "bob@butterchat.dev"},
	}

	accounts := make([]Account, 0, len(seeds))
	for _, seed := range seeds {
		password := seed.id
		hash, err := hashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", seed.email, err)
		}
		accounts = append(accounts, Account{
			User: types.User{
				Id:          seed.id,
				DisplayName: seed.name,
			},
			Email:        seed.email,
			PasswordHash: hash,
		})
	}

	return accounts, nil
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
