package config

import "github.com/meridianlabs/toolbridge/internal/tenant"

// Tenants converts the configured api spaces into tenant.Tenant values
// ready for tenant.New.
func (c *Root) Tenants() []tenant.Tenant {
	out := make([]tenant.Tenant, 0, len(c.Server.APISpaces))
	for _, space := range c.Server.APISpaces {
		admitted := make(map[string]struct{}, len(space.AllowedClientTokens))
		for _, tok := range space.AllowedClientTokens {
			admitted[tok] = struct{}{}
		}
		out = append(out, tenant.Tenant{
			Name:                space.Name,
			Description:         space.Description,
			BearerToken:         space.BearerToken,
			AllowedClientTokens: admitted,
		})
	}
	return out
}
