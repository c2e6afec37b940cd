package domain

import (
	"strings"
	"time"
)

// AddressRole describes what an address is used for by its entity.
type AddressRole string

const (
	RoleHot      AddressRole = "hot"
	RoleCold     AddressRole = "cold"
	RoleDeposit  AddressRole = "deposit"
	RoleTreasury AddressRole = "treasury"
	RoleContract AddressRole = "contract"
	RoleUnknown  AddressRole = "unknown"
)

// ParseAddressRole maps free-form input onto a known role.
func ParseAddressRole(v string) AddressRole {
	switch r := AddressRole(strings.ToLower(strings.TrimSpace(v))); r {
	case RoleHot, RoleCold, RoleDeposit, RoleTreasury, RoleContract:
		return r
	}
	return RoleUnknown
}

// Entity is a named attribution unit such as an exchange, fund or market maker.
type Entity struct {
	ID        int64
	Slug      string
	Name      string
	Category  string
	Addresses []EntityAddress
	CreatedAt time.Time
}

// EntityAddress links an on-chain address to its entity.
// (EntityID, Chain, Address) is unique.
type EntityAddress struct {
	EntityID        int64
	Chain           string
	Address         string
	Role            AddressRole
	LabelConfidence float64
	FirstSeen       *time.Time
	LastSeen        *time.Time
}

// AddressList returns the distinct lowercase addresses of the entity.
func (e Entity) AddressList() []string {
	seen := make(map[string]struct{}, len(e.Addresses))
	out := make([]string, 0, len(e.Addresses))
	for _, a := range e.Addresses {
		addr := strings.ToLower(a.Address)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
