package repository

import (
	"testing"
	"time"

	"soundsketch/model"
)

func TestNextLatestVersion(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id int64, offset time.Duration) *model.Version {
		return &model.Version{ID: id, CreatedAt: base.Add(offset)}
	}

	tests := []struct {
		name      string
		versions  []*model.Version
		deletedID int64
		wantID    int64
		wantOK    bool
	}{
		{
			name:      "picks newest survivor",
			versions:  []*model.Version{mk(1, 0), mk(2, time.Hour), mk(3, 2*time.Hour)},
			deletedID: 3,
			wantID:    2,
			wantOK:    true,
		},
		{
			name:      "deleting older version keeps newest",
			versions:  []*model.Version{mk(1, 0), mk(2, time.Hour), mk(3, 2*time.Hour)},
			deletedID: 1,
			wantID:    3,
			wantOK:    true,
		},
		{
			name:      "last version deleted clears pointer",
			versions:  []*model.Version{mk(5, 0)},
			deletedID: 5,
			wantID:    0,
			wantOK:    false,
		},
		{
			name:      "equal timestamps break ties by higher ID",
			versions:  []*model.Version{mk(1, 0), mk(2, 0), mk(9, 0)},
			deletedID: 1,
			wantID:    9,
			wantOK:    true,
		},
		{
			name:      "empty input",
			versions:  nil,
			deletedID: 1,
			wantID:    0,
			wantOK:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotOK := NextLatestVersion(tt.versions, tt.deletedID)
			if gotID != tt.wantID || gotOK != tt.wantOK {
				t.Errorf("NextLatestVersion() = (%d, %v), want (%d, %v)", gotID, gotOK, tt.wantID, tt.wantOK)
			}
		})
	}
}
