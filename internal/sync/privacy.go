package sync

import (
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// busyOnlySummary replaces every summary under busy_only privacy.
const busyOnlySummary = "Busy"

// EffectivePrivacy folds the sync mode into the privacy level: busy_free
// mode always behaves as busy_only, whatever privacy the config names.
func EffectivePrivacy(mode model.Mode, p model.Privacy) model.Privacy {
	if mode == model.ModeBusyFree {
		return model.PrivacyBusyOnly
	}
	return p
}

// ApplyPrivacy redacts an instance according to the privacy level and
// reports whether it should be synced at all. Under busy_only the summary
// becomes a generic label, description and location are cleared, and
// free/transparent instances are dropped. Start, end and UID are never
// touched, so the fingerprint is identical across privacy levels.
func ApplyPrivacy(inst model.Instance, p model.Privacy) (model.Instance, bool) {
	if p != model.PrivacyBusyOnly {
		return inst, true
	}
	if !inst.Busy {
		return model.Instance{}, false
	}
	inst.Summary = busyOnlySummary
	inst.Description = ""
	inst.Location = ""
	return inst, true
}
