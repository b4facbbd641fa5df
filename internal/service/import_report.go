package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/course-eval-api/internal/dto"
	"github.com/noah-isme/course-eval-api/internal/models"
	"github.com/noah-isme/course-eval-api/pkg/export"
)

const importReportTitle = "JSON IMPORTER REPORT"

// NameChange records a renamed person.
type NameChange struct {
	OldLastName       string
	OldFirstNameGiven string
	NewLastName       string
	NewFirstNameGiven string
}

func (n NameChange) String() string {
	return fmt.Sprintf("%s %s → %s %s", n.OldFirstNameGiven, n.OldLastName, n.NewFirstNameGiven, n.NewLastName)
}

func nameChangeFrom(profile *models.UserProfile, changes models.FieldChanges) NameChange {
	change := NameChange{
		OldLastName:       profile.LastName,
		OldFirstNameGiven: profile.FirstNameGiven,
		NewLastName:       profile.LastName,
		NewFirstNameGiven: profile.FirstNameGiven,
	}
	if c, ok := changes["last_name"]; ok {
		change.OldLastName, _ = c.Old.(string)
	}
	if c, ok := changes["first_name_given"]; ok {
		change.OldFirstNameGiven, _ = c.Old.(string)
	}
	return change
}

// ImportReport collects what one import run changed.
type ImportReport struct {
	SemesterID         string
	FinishedAt         time.Time
	NameChanges        []NameChange
	NewCourses         []models.Course
	NewEvaluations     []models.Evaluation
	UpdatedCourses     []models.Course
	UpdatedEvaluations []models.Evaluation
	AttemptedChanges   []models.Evaluation
}

type reportSection struct {
	heading string
	items   []string
}

func (r *ImportReport) sections() []reportSection {
	return []reportSection{
		{heading: "Name Changes", items: stringify(r.NameChanges)},
		{heading: "New Courses", items: stringify(r.NewCourses)},
		{heading: "New Evaluations", items: stringify(r.NewEvaluations)},
		{heading: "Updated Courses", items: stringify(r.UpdatedCourses)},
		{heading: "Updated Evaluations", items: stringify(r.UpdatedEvaluations)},
		{heading: "Attempted Changes", items: stringify(r.AttemptedChanges)},
	}
}

func stringify[T fmt.Stringer](values []T) []string {
	items := make([]string, 0, len(values))
	for _, v := range values {
		items = append(items, v.String())
	}
	return items
}

func writeHeading(b *strings.Builder, heading, underline string) {
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(strings.Repeat(underline, len([]rune(heading))))
	b.WriteString("\n")
}

// Log renders the plain-text report.
func (r *ImportReport) Log() string {
	var b strings.Builder
	writeHeading(&b, importReportTitle, "=")
	b.WriteString("\n")
	fmt.Fprintf(&b, "Import finished at %s\n\n", r.FinishedAt.Format("2006-01-02 15:04:05.000000-07:00"))

	for _, section := range r.sections() {
		writeHeading(&b, section.heading, "-")
		fmt.Fprintf(&b, "(%d in total)\n\n", len(section.items))
		for _, item := range section.items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return b.String()
}

// HasChanges reports whether any section other than attempted changes is non-empty.
func (r *ImportReport) HasChanges() bool {
	return len(r.NameChanges)+len(r.NewCourses)+len(r.NewEvaluations)+len(r.UpdatedCourses)+len(r.UpdatedEvaluations) > 0
}

// Document converts the report for the CSV and PDF exporters.
func (r *ImportReport) Document() export.Document {
	doc := export.Document{
		Title:    importReportTitle,
		Subtitle: fmt.Sprintf("Semester %s, finished at %s", r.SemesterID, r.FinishedAt.Format(time.RFC3339)),
	}
	for _, section := range r.sections() {
		doc.Sections = append(doc.Sections, export.Section{
			Heading: section.heading,
			Total:   len(section.items),
			Items:   section.items,
		})
	}
	return doc
}

// Response converts the report into its API representation.
func (r *ImportReport) Response() dto.ImportReportResponse {
	sections := r.sections()
	return dto.ImportReportResponse{
		SemesterID:         r.SemesterID,
		FinishedAt:         r.FinishedAt,
		NameChanges:        sections[0].items,
		NewCourses:         sections[1].items,
		NewEvaluations:     sections[2].items,
		UpdatedCourses:     sections[3].items,
		UpdatedEvaluations: sections[4].items,
		AttemptedChanges:   sections[5].items,
		Log:                r.Log(),
	}
}
