package dto

// ImportRow is one equipment row of a bulk-import payload. Keys follow the
// legacy column names the import files were exported with.
type ImportRow struct {
	IDContact          int    `json:"id_contact"`
	NumeroEquipement   string `json:"numero_equipement" binding:"required"`
	LibelleEquipement  string `json:"libelle_equipement"`
	Visite             string `json:"visite"`
	Annee              string `json:"annee"`
	Marque             string `json:"marque"`
	ModeFonctionnement string `json:"mode_fonctionnement"`
	RepereSiteClient   string `json:"repere_site_client"`
	IsHorsContrat      bool   `json:"is_hors_contrat"`
	IsArchive          bool   `json:"is_archive"`
}

// ImportRequest is the bulk-import body for one contact's equipment list.
type ImportRequest struct {
	IDContact int         `json:"id_contact" binding:"required"`
	Annee     string      `json:"annee"`
	Rows      []ImportRow `json:"rows" binding:"required"`
}

// ImportResponse reports the import outcome: the committed row count, the
// duplicates that were reported (and skipped unless force was set), and any
// batch-level errors.
type ImportResponse struct {
	Inserted   int      `json:"inserted"`
	Duplicates []string `json:"duplicates,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Total      int      `json:"total_for_contact"`
}

// WebhookRequest is the push payload the forms platform delivers when a form
// entry is saved.
type WebhookRequest struct {
	AgencyCode string   `json:"agency_code" binding:"required"`
	FormID     int      `json:"form_id" binding:"required"`
	DataID     int      `json:"data_id" binding:"required"`
	IDContact  int      `json:"id_contact"`
	Medias     []string `json:"medias"`
	Priority   int      `json:"priority"`
}

// ResetStuckRequest configures a stuck-job recovery pass. A zero threshold
// uses the default.
type ResetStuckRequest struct {
	ThresholdMinutes int `json:"threshold_minutes"`
}

// PurgeRequest configures a terminal-job purge. A zero retention uses the
// per-status default.
type PurgeRequest struct {
	Status        string `json:"status" binding:"required"`
	RetentionDays int    `json:"retention_days"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}
