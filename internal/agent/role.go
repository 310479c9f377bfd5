// Package agent describes the roles that execute pipeline tasks and
// assembles their descriptors for a run.
package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of agent roles.
type Role int

const (
	RoleDocumentIngestion Role = iota + 1
	RoleRFPAnalysis
	RoleProposalWriting
	RoleBudgetPreparation
	RoleQualityReview
	RoleProjectManager // executes delegated tasks in hierarchical runs
	RoleMissionVision
	RoleImpactResearch
	RoleBudgetAnalysis
	RoleTeamGovernance
	RoleCaseTestimonial
)

var roleNames = map[Role]string{
	RoleDocumentIngestion: "document-ingestion",
	RoleRFPAnalysis:       "rfp-analysis",
	RoleProposalWriting:   "proposal-writing",
	RoleBudgetPreparation: "budget-preparation",
	RoleQualityReview:     "quality-review",
	RoleProjectManager:    "project-manager",
	RoleMissionVision:     "mission-vision",
	RoleImpactResearch:    "impact-research",
	RoleBudgetAnalysis:    "budget-analysis",
	RoleTeamGovernance:    "team-governance",
	RoleCaseTestimonial:   "case-testimonial",
}

// ErrUnknownRole is returned for role names outside the closed set.
var ErrUnknownRole = errors.New("unknown agent role")

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Roles returns every role in declaration order.
func Roles() []Role {
	return []Role{
		RoleDocumentIngestion,
		RoleRFPAnalysis,
		RoleProposalWriting,
		RoleBudgetPreparation,
		RoleQualityReview,
		RoleProjectManager,
		RoleMissionVision,
		RoleImpactResearch,
		RoleBudgetAnalysis,
		RoleTeamGovernance,
		RoleCaseTestimonial,
	}
}

// ParseRole converts a configuration name into a Role.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}
