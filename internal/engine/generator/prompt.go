package generator

import (
	_ "embed"
	"strings"
	"text/template"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
)

// SystemPrompt frames every request to the text-generation service.
const SystemPrompt = "You are an expert Go programmer. You write small, correct functions " +
	"that use only the Go standard library and compile without modification."

//go:embed prompt.tmpl
var promptSource string

var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"summary": summary,
}).Parse(promptSource))

type promptData struct {
	Name     string
	Header   string
	Doc      string
	TestBody string
	Imports  string
	Failures []domain.GenerationAttempt
	Latest   *domain.GenerationAttempt
}

// BuildPrompt renders the request for one attempt. history holds the attempts already
// recorded for the declaration's fingerprint; failed ones are listed and the most recent
// failed candidate is quoted with its failure detail.
func BuildPrompt(decl domain.FunctionDeclaration, allowed []string, history []domain.GenerationAttempt) (domain.Prompt, error) {
	data := promptData{
		Name:     decl.Name(),
		Header:   decl.Header(),
		Doc:      decl.Doc,
		TestBody: strings.TrimSpace(decl.TestBody),
		Imports:  strings.Join(allowed, ", "),
	}
	for i := range history {
		attempt := history[i]
		if attempt.Outcome == domain.OutcomePass {
			continue
		}
		data.Failures = append(data.Failures, attempt)
		if attempt.Outcome.CandidateFailure() && attempt.Candidate != "" {
			latest := attempt
			latest.Candidate = strings.TrimSpace(latest.Candidate)
			latest.Detail = strings.TrimSpace(latest.Detail)
			data.Latest = &latest
		}
	}
	if data.Imports == "" {
		data.Imports = "(none)"
	}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return domain.Prompt{}, zerr.With(zerr.Wrap(err, "failed to render prompt"), "identity", decl.Identity.String())
	}
	return domain.Prompt{Identity: decl.Identity, System: SystemPrompt, User: b.String()}, nil
}

// summary returns the first line of a failure detail.
func summary(detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return "(no detail)"
	}
	line, _, _ := strings.Cut(detail, "\n")
	return line
}
