package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
	"go.trai.ch/parablock/internal/engine/orchestrator"
	"go.trai.ch/parablock/internal/ui/style"
)

// Report is what show prints for one identity.
type Report struct {
	Identity domain.Identity `json:"identity"`
	Pin      *domain.Pin     `json:"pin,omitempty"`
	Entries  []EntryReport   `json:"entries"`
}

// EntryReport is one stored entry with the attempts recorded for its fingerprint.
type EntryReport struct {
	domain.CacheEntry
	History []domain.GenerationAttempt `json:"history,omitempty"`
}

// Serving returns the entry a dispatcher would serve: the pinned one, else the newest accepted.
func (r Report) Serving() *EntryReport {
	for i := range r.Entries {
		e := &r.Entries[i]
		if r.Pin != nil && e.Fingerprint == r.Pin.Fingerprint {
			return e
		}
	}
	if r.Pin != nil {
		return nil
	}
	for i := range r.Entries {
		if r.Entries[i].Status.Servable() {
			return &r.Entries[i]
		}
	}
	return nil
}

func inspect(ctx context.Context, store ports.CacheStore, id domain.Identity) (Report, error) {
	pin, err := store.Pin(ctx, id)
	if err != nil {
		return Report{}, err
	}

	entries, err := store.Entries(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if len(entries) == 0 && pin == nil {
		return Report{}, zerr.With(zerr.Wrap(domain.ErrEntryNotFound, "nothing stored"), "identity", id.String())
	}

	report := Report{Identity: id, Pin: pin, Entries: make([]EntryReport, 0, len(entries))}
	for _, e := range entries {
		history, err := store.Attempts(ctx, id, e.Fingerprint)
		if err != nil {
			return Report{}, err
		}
		report.Entries = append(report.Entries, EntryReport{CacheEntry: e, History: history})
	}
	return report, nil
}

func renderReport(w io.Writer, r Report) error {
	var b strings.Builder
	b.WriteString(style.Title.Render(r.Identity.String()))
	b.WriteByte('\n')

	for _, e := range r.Entries {
		fmt.Fprintf(&b, "  %s %s  %-8s  %s  %s\n",
			style.StatusIcon(string(e.Status)),
			e.Fingerprint.Short(),
			e.Status,
			style.Label.Render(e.Created.Format(time.DateTime)),
			describeTest(e),
		)
		for _, a := range e.History {
			if a.Outcome.CandidateFailure() || a.Outcome == domain.OutcomeServiceError {
				fmt.Fprintf(&b, "      %s attempt %d %s: %s\n",
					style.Failure.Render(style.Cross), a.Number, a.Outcome, firstLine(a.Detail))
			}
		}
	}

	if serving := r.Serving(); serving != nil {
		fmt.Fprintf(&b, "\n%s\n", style.Label.Render("implementation "+serving.Fingerprint.Short()+":"))
		b.WriteString(strings.TrimRight(serving.Implementation, "\n"))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func describeTest(e EntryReport) string {
	s := fmt.Sprintf("%s in %s", e.Test.Outcome, e.Test.Duration.Round(time.Millisecond))
	if e.Attempts > 0 {
		s += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Status == domain.StatusFailed && e.Test.Detail != "" {
		s += ": " + firstLine(e.Test.Detail)
	}
	return s
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func (a *App) printOutcomes(results []orchestrator.IdentityOutcome) error {
	if a.json {
		type row struct {
			Identity domain.Identity        `json:"identity"`
			State    domain.GenerationState `json:"state"`
			Error    string                 `json:"error,omitempty"`
		}
		rows := make([]row, 0, len(results))
		for _, r := range results {
			out := row{Identity: r.Identity, State: r.State}
			if r.Err != nil {
				out.Error = r.Err.Error()
			}
			rows = append(rows, out)
		}
		return writeJSON(a.out, rows)
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%s %s %s\n", stateIcon(r.State), r.Identity, style.Label.Render(string(r.State)))
	}
	_, err := io.WriteString(a.out, b.String())
	return err
}

func (a *App) printVerdicts(verdicts []orchestrator.Verdict) error {
	if a.json {
		type row struct {
			Identity    domain.Identity    `json:"identity"`
			Fingerprint domain.Fingerprint `json:"fingerprint"`
			Missing     bool               `json:"missing,omitempty"`
			Result      domain.TestResult  `json:"result,omitzero"`
		}
		rows := make([]row, 0, len(verdicts))
		for _, v := range verdicts {
			rows = append(rows, row{Identity: v.Identity, Fingerprint: v.Fingerprint, Missing: v.Missing, Result: v.Result})
		}
		return writeJSON(a.out, rows)
	}

	var b strings.Builder
	for _, v := range verdicts {
		switch {
		case v.Missing:
			fmt.Fprintf(&b, "%s %s %s\n", style.Label.Render(style.Circle), v.Identity, style.Label.Render("missing"))
		case v.Result.Passed():
			fmt.Fprintf(&b, "%s %s %s\n", style.Success.Render(style.Check), v.Identity, style.Label.Render(v.Fingerprint.Short()))
		default:
			fmt.Fprintf(&b, "%s %s %s: %s\n", style.Failure.Render(style.Cross), v.Identity,
				v.Result.Outcome, firstLine(v.Result.Detail))
		}
	}
	_, err := io.WriteString(a.out, b.String())
	return err
}

func stateIcon(state domain.GenerationState) string {
	switch state {
	case domain.StateAccepted:
		return style.Success.Render(style.Check)
	case domain.StateSkipped:
		return style.Label.Render(style.Dot)
	case domain.StateExhausted:
		return style.Failure.Render(style.Cross)
	default:
		return style.Pinned.Render(style.Warning)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
