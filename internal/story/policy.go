package story

import "github.com/BTreeMap/SleepyStorybook/internal/models"

// Approval thresholds. The overall bar is one point higher than the subscores;
// this asymmetry is intentional and not configurable.
const (
	ApprovalOverall  = 9
	ApprovalSubscore = 8
)

// Approves reports whether a score passes the approval policy.
func Approves(s models.QualityScore) bool {
	return s.Overall >= ApprovalOverall &&
		s.Clarity >= ApprovalSubscore &&
		s.MoralValue >= ApprovalSubscore &&
		s.AgeAppropriateness >= ApprovalSubscore
}
