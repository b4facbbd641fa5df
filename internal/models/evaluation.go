package models

import "time"

// EvaluationState is the workflow state of an evaluation. Values are ordered.
type EvaluationState int

const (
	EvaluationStateNew            EvaluationState = 10
	EvaluationStatePrepared       EvaluationState = 20
	EvaluationStateEditorApproved EvaluationState = 30
	EvaluationStateApproved       EvaluationState = 40
	EvaluationStateInEvaluation   EvaluationState = 50
	EvaluationStateEvaluated      EvaluationState = 60
	EvaluationStateReviewed       EvaluationState = 70
	EvaluationStatePublished      EvaluationState = 80
)

// Locked reports whether the state forbids import-driven edits.
func (s EvaluationState) Locked() bool {
	return s >= EvaluationStateApproved
}

func (s EvaluationState) String() string {
	switch s {
	case EvaluationStateNew:
		return "new"
	case EvaluationStatePrepared:
		return "prepared"
	case EvaluationStateEditorApproved:
		return "editor approved"
	case EvaluationStateApproved:
		return "approved"
	case EvaluationStateInEvaluation:
		return "in evaluation"
	case EvaluationStateEvaluated:
		return "evaluated"
	case EvaluationStateReviewed:
		return "reviewed"
	case EvaluationStatePublished:
		return "published"
	default:
		return "unknown"
	}
}

// Evaluation is one evaluation of a course, e.g. the exam evaluation of Math 101.
type Evaluation struct {
	ID                                 string          `db:"id" json:"id"`
	CourseID                           string          `db:"course_id" json:"course_id"`
	CMSID                              string          `db:"cms_id" json:"cms_id"`
	State                              EvaluationState `db:"state" json:"state"`
	NameDE                             string          `db:"name_de" json:"name_de"`
	NameEN                             string          `db:"name_en" json:"name_en"`
	VoteStartDatetime                  time.Time       `db:"vote_start_datetime" json:"vote_start_datetime"`
	VoteEndDate                        time.Time       `db:"vote_end_date" json:"vote_end_date"`
	WaitForGradeUploadBeforePublishing bool            `db:"wait_for_grade_upload_before_publishing" json:"wait_for_grade_upload_before_publishing"`
	CreatedAt                          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                          time.Time       `db:"updated_at" json:"updated_at"`

	// Course is attached by the importer for reporting; it is not persisted with the row.
	Course *Course `db:"-" json:"-"`
}

// EvaluationFields are the import-managed attributes of an evaluation.
type EvaluationFields struct {
	NameDE                             string
	NameEN                             string
	VoteStartDatetime                  time.Time
	VoteEndDate                        time.Time
	WaitForGradeUploadBeforePublishing bool
}

// Name prefers the English name.
func (e Evaluation) Name() string {
	if e.NameEN != "" {
		return e.NameEN
	}
	return e.NameDE
}

// FullName combines course and evaluation names, e.g. "Math 101 – Exam".
func (e Evaluation) FullName() string {
	courseName := ""
	if e.Course != nil {
		courseName = e.Course.Name()
	}
	if name := e.Name(); name != "" {
		if courseName == "" {
			return name
		}
		return courseName + " – " + name
	}
	if courseName == "" {
		return e.CMSID
	}
	return courseName
}

// String implements fmt.Stringer for report lines.
func (e Evaluation) String() string {
	return e.FullName()
}
