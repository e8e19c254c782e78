package agent

// Role is the configuration that distinguishes one agent from another.
type Role struct {
	Name     string
	Template string
	// Requires are fields that must be populated before invocation.
	Requires []string
	// Optional are fields the template reads when present.
	Optional []string
	System   string
	// JSON asks the backend for a JSON object response.
	JSON bool
}

// Role names, also used as template keys.
const (
	RoleResearcher = "researcher"
	RoleSummarizer = "summarizer"
	RoleWriter     = "writer"
	RoleCritic     = "critic"

	// TemplateCriticJSON is the critic template asking for a JSON verdict.
	TemplateCriticJSON = "critic_json"
)

// Researcher gathers raw notes about the problem.
func Researcher() Role {
	return Role{
		Name:     RoleResearcher,
		Template: RoleResearcher,
		Requires: []string{FieldProblem},
		Optional: []string{FieldReference},
		System: "You are the Researcher agent. Gather accurate facts, key concepts, " +
			"recent developments and useful examples for the task you are given.",
	}
}

// Summarizer condenses research notes into a structured summary.
func Summarizer() Role {
	return Role{
		Name:     RoleSummarizer,
		Template: RoleSummarizer,
		Requires: []string{FieldProblem, FieldResearchNotes},
		System: "You are the Summarizer agent. Produce concise, structured summaries " +
			"that keep the essential points and drop everything else.",
	}
}

// Writer turns the summary into a draft, or revises the previous draft when
// a critique is present.
func Writer() Role {
	return Role{
		Name:     RoleWriter,
		Template: RoleWriter,
		Requires: []string{FieldProblem, FieldSummary},
		Optional: []string{FieldDraft, FieldCritique, FieldRevisionCount},
		System: "You are the Writer agent. Write clear, well structured, publication " +
			"ready articles with an introduction, headed sections and a conclusion.",
	}
}

// Critic reviews the current draft. With structured set, the critic is asked
// for a JSON verdict instead of free text.
func Critic(structured bool) Role {
	tmpl := RoleCritic
	if structured {
		tmpl = TemplateCriticJSON
	}
	return Role{
		Name:     RoleCritic,
		Template: tmpl,
		Requires: []string{FieldProblem, FieldDraft},
		Optional: []string{FieldRevisionCount},
		System: "You are the Critic agent. Evaluate drafts for clarity, structure, " +
			"accuracy and completeness against the original task.",
		JSON: structured,
	}
}

// Reads returns every field the role's template may read.
func (r Role) Reads() []string {
	out := make([]string, 0, len(r.Requires)+len(r.Optional))
	out = append(out, r.Requires...)
	return append(out, r.Optional...)
}
