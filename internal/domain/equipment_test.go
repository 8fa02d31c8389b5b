package domain

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEquipmentRecord_Normalized(t *testing.T) {
	tests := []struct {
		name       string
		row        EquipmentRecord
		wantVisite string
		wantAnnee  string
	}{
		{
			name:       "missing visite defaults to CEA",
			row:        EquipmentRecord{Annee: "2024"},
			wantVisite: VisiteCEA,
			wantAnnee:  "2024",
		},
		{
			name:       "whitespace visite defaults to CEA",
			row:        EquipmentRecord{Visite: "  ", Annee: "2024"},
			wantVisite: VisiteCEA,
			wantAnnee:  "2024",
		},
		{
			name:       "missing annee defaults to current year",
			row:        EquipmentRecord{Visite: VisiteCE2},
			wantVisite: VisiteCE2,
			wantAnnee:  strconv.Itoa(time.Now().Year()),
		},
		{
			name:       "populated row untouched",
			row:        EquipmentRecord{Visite: VisiteCE1, Annee: "2023"},
			wantVisite: VisiteCE1,
			wantAnnee:  "2023",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.row.Normalized()
			assert.Equal(t, tt.wantVisite, got.Visite)
			assert.Equal(t, tt.wantAnnee, got.Annee)
			assert.False(t, got.IsHorsContrat)
			assert.False(t, got.IsArchive)
		})
	}
}

func TestEquipmentRecord_NormalizedChangesDomainKey(t *testing.T) {
	row := EquipmentRecord{NumeroEquipement: "SEC01"}

	assert.Equal(t, "SEC01|", row.DomainKey())

	normalized := row.Normalized()
	assert.Equal(t, "SEC01|"+VisiteCEA, normalized.DomainKey())
}
