package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// ImportPayload is the academic-records export consumed by the JSON importer.
type ImportPayload struct {
	Students  []ImportStudent  `json:"students" validate:"required,dive"`
	Lecturers []ImportLecturer `json:"lecturers" validate:"required,dive"`
	Events    []ImportEvent    `json:"events" validate:"required,dive"`
}

// ImportStudent is a participant record.
type ImportStudent struct {
	GGUID         string `json:"gguid" validate:"required"`
	Email         string `json:"email" validate:"required"`
	Name          string `json:"name"`
	ChristianName string `json:"christianname"`
}

// ImportLecturer is a contributor record.
type ImportLecturer struct {
	GGUID         string `json:"gguid" validate:"required"`
	Email         string `json:"email" validate:"required"`
	Name          string `json:"name"`
	ChristianName string `json:"christianname"`
	TitleFront    string `json:"titlefront"`
}

// ImportCourse links an event to a degree program.
type ImportCourse struct {
	CPRID string `json:"cprid" validate:"required"`
	Scale string `json:"scale"`
}

// ImportRelated references another record by gguid.
type ImportRelated struct {
	GGUID string `json:"gguid" validate:"required"`
}

// ImportAppointment is one session of an event, formatted as DD.MM.YYYY HH:MM.
type ImportAppointment struct {
	Begin string `json:"begin" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// ImportEvent is a course event or the exam attached to one.
type ImportEvent struct {
	GGUID         string              `json:"gguid" validate:"required"`
	LVNR          int                 `json:"lvnr"`
	Title         string              `json:"title"`
	TitleEN       string              `json:"title_en"`
	Type          string              `json:"type" validate:"required"`
	IsExam        bool                `json:"isexam"`
	Courses       []ImportCourse      `json:"courses" validate:"required,dive"`
	RelatedEvents ImportRelatedEvent  `json:"relatedevents" validate:"-"`
	Appointments  []ImportAppointment `json:"appointments" validate:"required,min=1,dive"`
	Lecturers     []ImportRelated     `json:"lecturers" validate:"required,dive"`
	Students      []ImportRelated     `json:"students" validate:"required,dive"`
}

// ImportRelatedEvent points an exam at the course event it belongs to.
type ImportRelatedEvent struct {
	GGUID string `json:"gguid"`
}

// MissingKeyError reports an import record that lacks a key the importer reads.
type MissingKeyError struct {
	Record string
	Key    string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s record is missing key %q", e.Record, e.Key)
}

func requireKeys(data []byte, record string, keys ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			return &MissingKeyError{Record: record, Key: key}
		}
	}
	return nil
}

// UnmarshalJSON rejects student records without their name keys.
func (s *ImportStudent) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "student", "gguid", "email", "name", "christianname"); err != nil {
		return err
	}
	type plain ImportStudent
	return json.Unmarshal(data, (*plain)(s))
}

// UnmarshalJSON rejects lecturer records without their name or title keys.
func (l *ImportLecturer) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "lecturer", "gguid", "email", "name", "christianname", "titlefront"); err != nil {
		return err
	}
	type plain ImportLecturer
	return json.Unmarshal(data, (*plain)(l))
}

func (c *ImportCourse) UnmarshalJSON(data []byte) error {
	if err := requireKeys(data, "course", "cprid", "scale"); err != nil {
		return err
	}
	type plain ImportCourse
	return json.Unmarshal(data, (*plain)(c))
}

// UnmarshalJSON rejects events missing any key the importer reads. relatedevents is
// only read for exams and is checked after decoding.
func (e *ImportEvent) UnmarshalJSON(data []byte) error {
	err := requireKeys(data, "event",
		"gguid", "type", "title", "title_en", "isexam", "courses", "appointments", "lecturers", "students")
	if err != nil {
		return err
	}
	type plain ImportEvent
	return json.Unmarshal(data, (*plain)(e))
}

// ImportReportResponse summarises a finished import for API consumers.
type ImportReportResponse struct {
	SemesterID         string    `json:"semesterId"`
	FinishedAt         time.Time `json:"finishedAt"`
	NameChanges        []string  `json:"nameChanges"`
	NewCourses         []string  `json:"newCourses"`
	NewEvaluations     []string  `json:"newEvaluations"`
	UpdatedCourses     []string  `json:"updatedCourses"`
	UpdatedEvaluations []string  `json:"updatedEvaluations"`
	AttemptedChanges   []string  `json:"attemptedChanges"`
	Log                string    `json:"log"`
}
