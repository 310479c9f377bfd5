package prompt

import "strings"

// Placeholders shared by several templates. Upstream task outputs are bound
// under BindingKey(taskName), and all of them together under KeyUpstream.
const (
	KeyOrgName        = "org_name"
	KeyBackground     = "background"
	KeyTotalBudget    = "total_budget"
	KeyDocumentNames  = "document_names"
	KeyExpectedOutput = "expected_output"
	KeyUpstream       = "upstream"
)

// InputKeys lists the placeholders bound from the run request and the task
// itself rather than from a named upstream task.
func InputKeys() []string {
	return []string{KeyOrgName, KeyBackground, KeyTotalBudget, KeyDocumentNames, KeyExpectedOutput, KeyUpstream}
}

// NoUpstream is bound to KeyUpstream for tasks without dependencies.
const NoUpstream = "No earlier sections."

// Upstream joins dependency outputs under one heading per task, in the
// order given.
func Upstream(names []string, outputs map[string]string) string {
	if len(names) == 0 {
		return NoUpstream
	}
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### " + name + "\n\n")
		b.WriteString(strings.TrimSpace(outputs[name]))
	}
	return b.String()
}

var templateText = map[Kind]string{
	KindDocumentIngestion: `Process and organize the uploaded files for {{.org_name}}.

Background information on the RFP/proposal:
{{.background}}

Documents provided: {{.document_names}}

Read and analyze every uploaded document and extract the information that is
relevant to the grant proposal. Organize it in a clear, structured format with
one section per document and a short list of cross-cutting facts (deadlines,
eligibility rules, funding limits, contacts).

Expected output: {{.expected_output}}
`,

	KindRFPAnalysis: `Analyze the RFP requirements for {{.org_name}} and create a detailed task outline.

Organized summary of the uploaded documents:
{{.document_ingestion}}

1. Identify every key requirement stated in the RFP.
2. Break these requirements down into specific, actionable tasks.
3. Create a comprehensive outline of the work needed to complete the proposal.
4. Prioritize the tasks by importance and by deadline where one is given.

Expected output: {{.expected_output}}
`,

	KindProposalWriting: `Write the grant proposal narrative for {{.org_name}}.

Background information on the RFP/proposal:
{{.background}}

Document summary:
{{.document_ingestion}}

RFP requirements and task outline:
{{.rfp_analysis}}

Craft compelling, tailored proposal content that addresses every requirement in
the outline. Cover the organization's mission and vision, the need being
addressed, the proposed program, expected impact and how it will be measured,
and the team that will deliver it.

Expected output: {{.expected_output}}
`,

	KindBudgetPreparation: `Prepare the proposal budget for {{.org_name}}.

Total amount requested: {{.total_budget}}

RFP requirements and task outline:
{{.rfp_analysis}}

Proposal narrative:
{{.proposal_writing}}

1. Build a line-item budget for the proposed program that stays within the total.
2. Write a short justification for every line item.
3. Check the budget against any funding limits or cost rules in the RFP.

Expected output: {{.expected_output}}
`,

	KindQualityReview: `Review the complete grant proposal for {{.org_name}} before submission.

RFP requirements and task outline:
{{.rfp_analysis}}

Proposal narrative:
{{.proposal_writing}}

Budget:
{{.budget_preparation}}

1. Check every section for consistency in tone and messaging.
2. Remove contradictions and redundancies between sections.
3. Confirm that every required element of the application is addressed.
4. Improve flow and readability, then produce the final proposal text.

Expected output: {{.expected_output}}
`,

	KindMissionVision: `Write the mission and vision section of the grant proposal for {{.org_name}}.

Background information on the RFP/proposal:
{{.background}}

Earlier work:
{{.upstream}}

1. Summarize the organization's mission and vision from the information provided.
2. Highlight the key parts of the organization's impact and achievements.
3. Align the organization's goals with the objectives of the grant.
4. Keep the language inspiring and compelling for funders.

Expected output: {{.expected_output}}
`,

	KindImpactResearch: `Gather and analyze impact data supporting the funding case for {{.org_name}}.

Documents provided: {{.document_names}}

Earlier work:
{{.upstream}}

1. Identify the impact metrics most relevant to the organization's work.
2. Collect data on these metrics from the documents and earlier work.
3. Analyze the data to show how effective the organization is.
4. Present the findings in a clear format suitable for the proposal.

Expected output: {{.expected_output}}
`,

	KindBudgetAnalysis: `Review the financial information for {{.org_name}} and write the budget narrative.

Total amount requested: {{.total_budget}}

Earlier work:
{{.upstream}}

1. Analyze the organization's financial documents.
2. Build a detailed budget for the proposed project or for general operations.
3. Explain and justify every budget item in a short narrative.
4. Check that the budget matches the grant requirements and the organization's goals.

Expected output: {{.expected_output}}
`,

	KindTeamGovernance: `Describe the team and governance of {{.org_name}} for the grant proposal.

Background information on the RFP/proposal:
{{.background}}

Earlier work:
{{.upstream}}

1. Identify the key team members and their qualifications.
2. Describe the governance structure of the organization.
3. Point out what is distinctive about the team and the board.
4. Explain how the team and its governance make the organization effective.

Expected output: {{.expected_output}}
`,

	KindCaseTestimonial: `Write the case statement and testimonials section for {{.org_name}}.

Background information on the RFP/proposal:
{{.background}}

Earlier work:
{{.upstream}}

1. Make a strong case for why the organization deserves funding.
2. Identify likely sources of testimonials such as beneficiaries and partners.
3. Draft sample testimonials or quotes that support the organization's impact.
4. Weave the case statement and testimonials into one narrative.

Expected output: {{.expected_output}}
`,

	KindQualityIntegration: `Check the drafted sections of the grant proposal for {{.org_name}} for consistency.

Drafted sections:
{{.upstream}}

1. Review every section for consistent tone and messaging.
2. List contradictions and redundancies between sections.
3. Confirm that every required element of the application is addressed.
4. Suggest changes that improve the flow and readability of the document.

Expected output: {{.expected_output}}
`,

	KindFormattingSubmission: `Assemble the final grant proposal for {{.org_name}} for submission.

Sections and review notes:
{{.upstream}}

1. Compile every section into a single document.
2. Format the document according to any guidelines the funder specified.
3. Add a table of contents with section numbering.
4. Proofread the whole document and fix any remaining errors.

Expected output: {{.expected_output}}
`,

	KindProjectManagement: `Report on the grant proposal process for {{.org_name}}.

Total amount requested: {{.total_budget}}

Work completed so far:
{{.upstream}}

1. Check that every task was completed and in the right order.
2. Identify conflicts between sections and say how to resolve them.
3. List open items and the deadlines they must meet.
4. Summarize the progress of the proposal for the organization's leadership.

Expected output: {{.expected_output}}
`,
}
