// Package session resolves who is using the console and what they may do.
package session

import (
	"context"
	"log/slog"
	"slices"

	"github.com/vulnsphere/console/internal/vulnsphere"
)

type State int

const (
	Loading State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Identity is the resolved caller. The zero value is Loading, so a view
// that has not resolved yet never reads as signed out.
type Identity struct {
	state State
	user  vulnsphere.User
}

func LoadingIdentity() Identity { return Identity{state: Loading} }

func Anonymous() Identity { return Identity{state: Unauthenticated} }

func Known(u vulnsphere.User) Identity { return Identity{state: Authenticated, user: u} }

func (i Identity) State() State { return i.state }

// User returns the profile and true only when authenticated.
func (i Identity) User() (vulnsphere.User, bool) {
	if i.state != Authenticated {
		return vulnsphere.User{}, false
	}
	return i.user, true
}

func (i Identity) role() vulnsphere.Role {
	if i.state != Authenticated {
		return ""
	}
	return i.user.Role
}

func (i Identity) IsAdmin() bool  { return i.role() == vulnsphere.RoleAdmin }
func (i Identity) IsTester() bool { return i.role() == vulnsphere.RoleTester }
func (i Identity) IsClient() bool { return i.role() == vulnsphere.RoleClient }

func (i Identity) CanEdit() bool   { return i.IsAdmin() || i.IsTester() }
func (i Identity) CanDelete() bool { return i.IsAdmin() || i.IsTester() }

// HasCompanyAccess is true for every company when the caller is an admin,
// otherwise only for assigned companies.
func (i Identity) HasCompanyAccess(companyID string) bool {
	if i.IsAdmin() {
		return true
	}
	if i.state != Authenticated {
		return false
	}
	return slices.Contains(i.user.Companies, companyID)
}

// Nav gates the sidebar sections.
type Nav struct {
	Templates   bool
	Reports     bool
	Users       bool
	ActivityLog bool
}

func (i Identity) Nav() Nav {
	staff := i.state == Authenticated && !i.IsClient()
	return Nav{
		Templates:   staff,
		Reports:     staff,
		Users:       i.IsAdmin(),
		ActivityLog: i.IsAdmin(),
	}
}

// ProfileFetcher loads the caller's own profile.
type ProfileFetcher interface {
	Me(ctx context.Context) (vulnsphere.User, error)
}

type Resolver struct {
	profiles ProfileFetcher
}

func NewResolver(p ProfileFetcher) *Resolver {
	return &Resolver{profiles: p}
}

// Resolve fetches the profile once. Any failure, including an expired
// session or a 403, resolves to Unauthenticated.
func (r *Resolver) Resolve(ctx context.Context) Identity {
	id, _ := r.Lookup(ctx)
	return id
}

// Lookup is Resolve plus the failure, so a caller can tell a dead session
// from an unreachable API.
func (r *Resolver) Lookup(ctx context.Context) (Identity, error) {
	u, err := r.profiles.Me(ctx)
	if err != nil {
		slog.Debug("identity unresolved", "error", err)
		return Anonymous(), err
	}
	return Known(u), nil
}
