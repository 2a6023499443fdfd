package records

import (
	"strings"

	"schoolrecords/internal/apperrors"
)

// CreateAccount registers a new account. Usernames are unique and stored
// exactly as given, but a username of only whitespace is rejected.
func (s *Store) CreateAccount(input AccountInput) (Account, error) {
	if strings.TrimSpace(input.Username) == "" {
		return Account{}, apperrors.Validation("username", "username is required")
	}
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if err := validateStruct(input); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.state.accounts {
		if a.Username == input.Username {
			return Account{}, apperrors.Conflict("username " + input.Username + " is already taken")
		}
	}
	s.state.seq.Accounts++
	account := Account{
		ID:          s.state.seq.Accounts,
		Username:    input.Username,
		Password:    input.Password,
		Role:        input.Role,
		DisplayName: input.DisplayName,
	}
	s.state.accounts = append(s.state.accounts, account)
	return account, nil
}

// FindAccountByUsername returns the first account whose username matches exactly.
func (s *Store) FindAccountByUsername(username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.state.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return Account{}, apperrors.NotFound("account " + username + " not found")
}

// ListAccounts returns every account in creation order.
func (s *Store) ListAccounts() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Account{}, s.state.accounts...)
}

// ListAccountsByRole returns the accounts holding role, in creation order.
func (s *Store) ListAccountsByRole(role Role) []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Account{}
	for _, a := range s.state.accounts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Authenticate compares credentials byte for byte. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *Store) Authenticate(username, password string) (Account, error) {
	account, err := s.FindAccountByUsername(username)
	if err != nil {
		return Account{}, apperrors.InvalidCredentials()
	}
	if account.Password != password {
		return Account{}, apperrors.InvalidCredentials()
	}
	return account, nil
}
