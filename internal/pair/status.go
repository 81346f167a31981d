package pair

import "gauge-tracking-backend/internal/model"

// DefaultStatusPriority orders member statuses from most to least dominant
// when deriving a set's aggregate status. The exact tie-breaks are still
// being confirmed with the domain owner, which is why this is data rather
// than a switch; config can override it.
var DefaultStatusPriority = []model.GaugeStatus{
	model.StatusCheckedOut,
	model.StatusOutOfService,
	model.StatusOutForCalibration,
	model.StatusPendingCertificate,
	model.StatusPendingRelease,
	model.StatusCalibrationDue,
	model.StatusPendingQC,
}

func statusRank(s model.GaugeStatus, priority []model.GaugeStatus) int {
	for i, p := range priority {
		if p == s {
			return i
		}
	}
	// Unlisted non-available statuses (returned, retired, ...) rank below
	// every listed one but still dominate "available".
	return len(priority)
}

// ComputeSetStatus derives the pair-level status from the two member
// statuses. It is symmetric in its arguments and never persisted: the set is
// available only when both members are, otherwise the higher-priority member
// status wins. A nil priority falls back to DefaultStatusPriority.
func ComputeSetStatus(a, b model.GaugeStatus, priority []model.GaugeStatus) model.GaugeStatus {
	if a == model.StatusAvailable && b == model.StatusAvailable {
		return model.StatusAvailable
	}
	if priority == nil {
		priority = DefaultStatusPriority
	}
	if a == model.StatusAvailable {
		return b
	}
	if b == model.StatusAvailable {
		return a
	}
	if statusRank(b, priority) < statusRank(a, priority) {
		return b
	}
	return a
}

// ComputeSealStatus derives the pair-level seal flag: sealed if either
// member is sealed. Always derived on read.
func ComputeSealStatus(a, b bool) bool {
	return a || b
}
