package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	"github.com/google/uuid"
)

// MemorySeed lists the accounts a memory store knows about. Tokens whose
// subject is not listed are rejected as unknown accounts.
type MemorySeed struct {
	Customers   []account.Contact `json:"customers"`
	Technicians []uuid.UUID       `json:"technicians"`
	Admins      []uuid.UUID       `json:"admins"`
	Addresses   []account.Address `json:"addresses"`
}

// LoadMemorySeed reads a JSON seed file into accounts.
func LoadMemorySeed(path string, accounts *MemoryAccounts) (*MemorySeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory seed: %w", err)
	}
	var seed MemorySeed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse memory seed %s: %w", path, err)
	}
	if err := seed.Apply(accounts); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Apply adds every seeded account. Addresses must belong to a seeded customer.
func (s *MemorySeed) Apply(accounts *MemoryAccounts) error {
	owners := make(map[uuid.UUID]bool, len(s.Customers))
	for _, c := range s.Customers {
		if c.ID == uuid.Nil {
			return fmt.Errorf("memory seed: customer %q has no id", c.Name)
		}
		owners[c.ID] = true
	}
	for _, a := range s.Addresses {
		if a.ID == uuid.Nil {
			return fmt.Errorf("memory seed: address %q has no id", a.Name)
		}
		if !owners[a.UserID] {
			return fmt.Errorf("memory seed: address %s belongs to unknown customer %s", a.ID, a.UserID)
		}
	}

	for _, c := range s.Customers {
		accounts.AddCustomer(c)
	}
	for _, id := range s.Technicians {
		accounts.AddTechnician(id)
	}
	for _, id := range s.Admins {
		accounts.AddAdmin(id)
	}
	for _, a := range s.Addresses {
		accounts.AddAddress(a)
	}
	return nil
}
