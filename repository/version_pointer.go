package repository

import "soundsketch/model"

// NextLatestVersion picks the version that should become the track's latest
// pointer after deletedID is removed: the newest surviving version by creation
// time, ties broken by the higher ID. The second return is false when no
// version survives and the pointer must be cleared.
func NextLatestVersion(versions []*model.Version, deletedID int64) (int64, bool) {
	var best *model.Version
	for _, v := range versions {
		if v.ID == deletedID {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		if v.CreatedAt.After(best.CreatedAt) ||
			(v.CreatedAt.Equal(best.CreatedAt) && v.ID > best.ID) {
			best = v
		}
	}
	if best == nil {
		return 0, false
	}
	return best.ID, true
}
