package views

import (
	"context"
	"fmt"

	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

func UsersQuery() listing.Query[vulnsphere.User] {
	return listing.NewQuery(listing.ServerPaged, UsersPageSize,
		listing.Field[vulnsphere.User]{Name: "search", Placement: listing.Server},
		listing.Field[vulnsphere.User]{Name: "role", Placement: listing.Local, Match: func(u vulnsphere.User, v string) bool {
			return string(u.Role) == v
		}},
	)
}

// Users is the user admin page. Companies resolves assignment ids to names.
type Users struct {
	List[vulnsphere.User]
	Companies map[string]string
}

func (v *Views) Users(ctx context.Context, q listing.Query[vulnsphere.User]) (Users, error) {
	l, err := load(ctx, v.api.ListUsers, q)
	out := Users{List: l, Companies: map[string]string{}}
	if err != nil {
		return out, fmt.Errorf("listing users: %w", err)
	}
	// Names are cosmetic; a failure leaves the raw ids.
	if cs, err := v.api.ListCompanies(ctx, nil); err == nil {
		for _, c := range cs.Results {
			out.Companies[c.ID] = c.Name
		}
	}
	return out, nil
}

// CompanyNames maps assignment ids to display names, keeping unknown ids.
func (u Users) CompanyNames(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := u.Companies[id]; ok {
			out[i] = name
		} else {
			out[i] = id
		}
	}
	return out
}
