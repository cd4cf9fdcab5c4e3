// Package storage holds the tenant data model, the namespace naming rules,
// and the Postgres and in-memory backends used by the dispatch pipeline.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// Directory answers the read-side questions of the dispatch processor.
type Directory interface {
	// Template returns the subject's template with the given name.
	Template(ctx context.Context, ns Namespace, subjectID, name string) (*Template, error)
	// User returns the subject's account record.
	User(ctx context.Context, ns Namespace, subjectID string) (*User, error)
	// UnitPrice returns the subject's price for one message of category to
	// dialCode. A nil price means the category is not priced.
	UnitPrice(ctx context.Context, ns Namespace, subjectID, dialCode, category string) (*float64, error)
}

// Sink applies mutations. Each call is a single bulk operation against one
// namespace; mutations may target different subjects within it.
type Sink interface {
	UpsertSessions(ctx context.Context, ns Namespace, muts []*Mutation) error
	InsertLogs(ctx context.Context, ns Namespace, muts []*Mutation) error
}

// Namespace is the storage database of a tenant.
type Namespace string

// Table suffixes appended to a subject id to name its per-subject tables.
type Suffixes struct {
	Templates string `mapstructure:"templates"`
	Pricing   string `mapstructure:"pricing"`
	Sessions  string `mapstructure:"sessions"`
	LiveChat  string `mapstructure:"live_chat"`
}

// UsersTable is shared by all subjects of a namespace.
const UsersTable = "users"

// Resolver maps tenants to namespaces and subjects to table names.
type Resolver struct {
	SystemTenant    string   `mapstructure:"system_tenant"`
	SystemNamespace string   `mapstructure:"system_namespace"`
	TenantSuffix    string   `mapstructure:"tenant_suffix"`
	Suffixes        Suffixes `mapstructure:"suffixes"`
}

// DefaultResolver returns the naming rules used when nothing is configured.
func DefaultResolver() Resolver {
	return Resolver{
		SystemTenant:    "super_admin",
		SystemNamespace: "wa_system",
		TenantSuffix:    "_reseller",
		Suffixes: Suffixes{
			Templates: "_templates",
			Pricing:   "_pricing",
			Sessions:  "_sessions",
			LiveChat:  "_live_chat",
		},
	}
}

// Namespace returns the namespace holding the tenant's data. The reserved
// system tenant maps to the system namespace.
func (r Resolver) Namespace(tenant string) Namespace {
	if tenant == r.SystemTenant {
		return Namespace(r.SystemNamespace)
	}
	return Namespace(tenant + r.TenantSuffix)
}

func (r Resolver) TemplatesTable(subjectID string) string { return subjectID + r.Suffixes.Templates }
func (r Resolver) PricingTable(subjectID string) string   { return subjectID + r.Suffixes.Pricing }
func (r Resolver) SessionsTable(subjectID string) string  { return subjectID + r.Suffixes.Sessions }
func (r Resolver) LiveChatTable(subjectID string) string  { return subjectID + r.Suffixes.LiveChat }

var subjectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ValidSubjectID reports whether id is a 24 character hex object id that
// decodes to 12 bytes and encodes back to the same text.
func ValidSubjectID(id string) bool {
	if !subjectIDPattern.MatchString(id) {
		return false
	}
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != 12 {
		return false
	}
	return hex.EncodeToString(raw) == strings.ToLower(id)
}
