// Package tenant resolves agency codes to the physical per-agency table names.
//
// Each agency owns a near-identical set of tables (contrat_s10, contact_s10,
// avenant_s10, equipement_s10, ...). Table names cannot be bound as SQL
// parameters, so every dynamic query must go through Resolve first: it is the
// single place where an untrusted code is checked against the closed
// allow-list before being concatenated into an identifier.
package tenant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexandre-riera/somafi-ingest/internal/domain"
)

// Table name prefixes, one per entity sharded by agency.
const (
	contractPrefix  = "contrat_"
	contactPrefix   = "contact_"
	amendmentPrefix = "avenant_"
	equipmentPrefix = "equipement_"
)

// agencyCodes is the closed set of known agencies. Adding an agency means
// adding its code here and creating its tables from db/schema.sql.
var agencyCodes = map[string]struct{}{
	"S10":  {},
	"S40":  {},
	"S50":  {},
	"S60":  {},
	"S70":  {},
	"S80":  {},
	"S100": {},
	"S120": {},
	"S130": {},
	"S140": {},
	"S150": {},
	"S160": {},
	"S170": {},
}

// Tables holds the resolved physical table names for one agency.
type Tables struct {
	Contract  string
	Contact   string
	Amendment string
	Equipment string
}

// Resolve validates code against the allow-list (case-insensitively) and
// returns the table names for that agency. It fails with
// domain.ErrInvalidAgency for any code outside the list.
func Resolve(code string) (Tables, error) {
	normalized := Normalize(code)
	if _, ok := agencyCodes[normalized]; !ok {
		return Tables{}, fmt.Errorf("%w: %q", domain.ErrInvalidAgency, code)
	}

	suffix := strings.ToLower(normalized)
	return Tables{
		Contract:  contractPrefix + suffix,
		Contact:   contactPrefix + suffix,
		Amendment: amendmentPrefix + suffix,
		Equipment: equipmentPrefix + suffix,
	}, nil
}

// Normalize upper-cases and trims an agency code without validating it.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValid reports whether code is in the allow-list.
func IsValid(code string) bool {
	_, ok := agencyCodes[Normalize(code)]
	return ok
}

// Codes returns all known agency codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(agencyCodes))
	for code := range agencyCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
