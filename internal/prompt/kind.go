package prompt

import (
	"fmt"
	"strings"
)

// Kind identifies one of the built-in instruction templates.
type Kind string

const (
	KindDocumentIngestion Kind = "document-ingestion"
	KindRFPAnalysis       Kind = "rfp-analysis"
	KindProposalWriting   Kind = "proposal-writing"
	KindBudgetPreparation Kind = "budget-preparation"
	KindQualityReview     Kind = "quality-review"

	// Section kinds for longer proposals assembled from config plans.
	KindMissionVision        Kind = "mission-vision"
	KindImpactResearch       Kind = "impact-research"
	KindBudgetAnalysis       Kind = "budget-analysis"
	KindTeamGovernance       Kind = "team-governance"
	KindCaseTestimonial      Kind = "case-testimonial"
	KindQualityIntegration   Kind = "quality-integration"
	KindFormattingSubmission Kind = "formatting-submission"
	KindProjectManagement    Kind = "project-management"
)

// Kinds returns every template kind: the default pipeline's in order, then
// the section kinds.
func Kinds() []Kind {
	return []Kind{
		KindDocumentIngestion,
		KindRFPAnalysis,
		KindProposalWriting,
		KindBudgetPreparation,
		KindQualityReview,
		KindMissionVision,
		KindImpactResearch,
		KindBudgetAnalysis,
		KindTeamGovernance,
		KindCaseTestimonial,
		KindQualityIntegration,
		KindFormattingSubmission,
		KindProjectManagement,
	}
}

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}
