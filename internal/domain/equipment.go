package domain

import (
	"strconv"
	"strings"
	"time"
)

// Visit codes for periodic equipment inspections. CEA is the annual contract
// visit; CE1..CE4 are the quarterly ones.
const (
	VisiteCEA = "CEA"
	VisiteCE1 = "CE1"
	VisiteCE2 = "CE2"
	VisiteCE3 = "CE3"
	VisiteCE4 = "CE4"
)

// EquipmentRecord is one piece of client equipment in an agency's equipement_*
// table. Column names stay in French to match the legacy schema the import
// files were built against.
//
// Records created from a Kizeo event carry the SourceFormID/SourceDataID/
// SourceIndex triple; manually imported rows leave it nil and are deduplicated
// on (id_contact, numero_equipement, visite, annee) instead.
type EquipmentRecord struct {
	ID                 int64      `db:"id" json:"id"`
	IDContact          int        `db:"id_contact" json:"id_contact"`
	NumeroEquipement   string     `db:"numero_equipement" json:"numero_equipement"`
	LibelleEquipement  string     `db:"libelle_equipement" json:"libelle_equipement"`
	Visite             string     `db:"visite" json:"visite"`
	Annee              string     `db:"annee" json:"annee"`
	Marque             string     `db:"marque" json:"marque"`
	ModeFonctionnement string     `db:"mode_fonctionnement" json:"mode_fonctionnement"`
	RepereSiteClient   string     `db:"repere_site_client" json:"repere_site_client"`
	IsHorsContrat      bool       `db:"is_hors_contrat" json:"is_hors_contrat"`
	IsArchive          bool       `db:"is_archive" json:"is_archive"`
	DerniereVisite     *time.Time `db:"derniere_visite" json:"derniere_visite,omitempty"`
	SourceFormID       *int       `db:"source_form_id" json:"source_form_id,omitempty"`
	SourceDataID       *int       `db:"source_data_id" json:"source_data_id,omitempty"`
	SourceIndex        *int       `db:"source_index" json:"source_index,omitempty"`
}

// Normalized returns a copy with the row defaulting policy applied: blank
// visite becomes CEA, blank annee the current year. Every consumer of a
// record's domain key must see the defaulted values, so normalization runs
// before duplicate partitioning, not just before insert.
func (e EquipmentRecord) Normalized() EquipmentRecord {
	if strings.TrimSpace(e.Visite) == "" {
		e.Visite = VisiteCEA
	}
	if strings.TrimSpace(e.Annee) == "" {
		e.Annee = strconv.Itoa(time.Now().Year())
	}
	return e
}

// DomainKey is the natural key used to deduplicate rows that lack an upstream
// origin: equipment number and visit code, scoped by (id_contact, annee) at
// query time.
func (e *EquipmentRecord) DomainKey() string {
	return e.NumeroEquipement + "|" + e.Visite
}

// HasOrigin reports whether the record carries a complete upstream-origin
// triple.
func (e *EquipmentRecord) HasOrigin() bool {
	return e.SourceFormID != nil && e.SourceDataID != nil && e.SourceIndex != nil
}
