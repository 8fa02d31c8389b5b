package ingest

import (
	"fmt"

	"github.com/alexandre-riera/somafi-ingest/internal/tenant"
)

// FormEvent is the upstream notification that a Kizeo form entry was saved.
// The api-service publishes one per received webhook; the worker-service
// consumer turns it into ingest jobs.
type FormEvent struct {
	AgencyCode string   `json:"agency_code"`
	FormID     int      `json:"form_id"`
	DataID     int      `json:"data_id"`
	IDContact  int      `json:"id_contact"`
	Medias     []string `json:"medias"`
	Priority   int      `json:"priority,omitempty"`
}

// Validate checks the event carries a routable agency and a usable origin key.
func (e *FormEvent) Validate() error {
	if !tenant.IsValid(e.AgencyCode) {
		return fmt.Errorf("form event has invalid agency code %q", e.AgencyCode)
	}
	if e.FormID <= 0 || e.DataID <= 0 {
		return fmt.Errorf("form event has invalid origin key form=%d data=%d", e.FormID, e.DataID)
	}
	return nil
}
