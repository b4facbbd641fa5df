package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-eval-api/internal/models"
)

// memoryImportStore mimics the importer's tables in memory.
type memoryImportStore struct {
	seq                int
	semesters          map[string]*models.Semester
	profiles           map[string]models.UserProfile
	types              map[string]models.CourseType
	programs           map[string]models.Program
	courses            map[string]models.Course
	coursePrograms     map[string][]string
	courseResponsibles map[string][]string
	evaluations        map[string]models.Evaluation
	participants       map[string][]string
	contributions      map[string]bool
	failCourseUpsert   error
}

func newMemoryImportStore() *memoryImportStore {
	return &memoryImportStore{
		semesters:          map[string]*models.Semester{"sem-1": {ID: "sem-1", NameEN: "Summer 2024"}},
		profiles:           map[string]models.UserProfile{},
		types:              map[string]models.CourseType{},
		programs:           map[string]models.Program{},
		courses:            map[string]models.Course{},
		coursePrograms:     map[string][]string{},
		courseResponsibles: map[string][]string{},
		evaluations:        map[string]models.Evaluation{},
		participants:       map[string][]string{},
		contributions:      map[string]bool{},
	}
}

func (s *memoryImportStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memoryImportStore) evaluationByCMS(cmsID string) (models.Evaluation, bool) {
	for _, e := range s.evaluations {
		if e.CMSID == cmsID {
			return e, true
		}
	}
	return models.Evaluation{}, false
}

func (s *memoryImportStore) profileByEmail(email string) models.UserProfile {
	return s.profiles[email]
}

type fakeSemesters struct{ store *memoryImportStore }

func (f fakeSemesters) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	semester, ok := f.store.semesters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	found := *semester
	return &found, nil
}

type fakeUsers struct{ store *memoryImportStore }

func (f fakeUsers) UpdateOrCreateByEmail(ctx context.Context, exec sqlx.ExtContext, email string, fields models.UserProfileFields) (models.UpsertResult[models.UserProfile], error) {
	result := models.UpsertResult[models.UserProfile]{Changes: models.FieldChanges{}}
	profile, ok := f.store.profiles[email]
	if !ok {
		profile = models.UserProfile{ID: f.store.nextID("user"), Email: email, LastName: fields.LastName, FirstNameGiven: fields.FirstNameGiven, Title: fields.Title}
		f.store.profiles[email] = profile
		result.Entity = &profile
		result.Created = true
		return result, nil
	}
	if profile.LastName != fields.LastName {
		result.Changes["last_name"] = models.FieldChange{Old: profile.LastName, New: fields.LastName}
		profile.LastName = fields.LastName
	}
	if profile.FirstNameGiven != fields.FirstNameGiven {
		result.Changes["first_name_given"] = models.FieldChange{Old: profile.FirstNameGiven, New: fields.FirstNameGiven}
		profile.FirstNameGiven = fields.FirstNameGiven
	}
	if fields.SetTitle && profile.Title != fields.Title {
		result.Changes["title"] = models.FieldChange{Old: profile.Title, New: fields.Title}
		profile.Title = fields.Title
	}
	f.store.profiles[email] = profile
	result.Entity = &profile
	return result, nil
}

type fakeCourseTypes struct{ store *memoryImportStore }

func (f fakeCourseTypes) GetOrCreateByName(ctx context.Context, exec sqlx.ExtContext, name string) (*models.CourseType, error) {
	courseType, ok := f.store.types[name]
	if !ok {
		courseType = models.CourseType{ID: f.store.nextID("type"), NameDE: name, NameEN: name}
		f.store.types[name] = courseType
	}
	return &courseType, nil
}

type fakePrograms struct{ store *memoryImportStore }

func (f fakePrograms) GetOrCreateByName(ctx context.Context, exec sqlx.ExtContext, name string) (*models.Program, error) {
	program, ok := f.store.programs[name]
	if !ok {
		program = models.Program{ID: f.store.nextID("program"), NameDE: name, NameEN: name}
		f.store.programs[name] = program
	}
	return &program, nil
}

type fakeCourses struct{ store *memoryImportStore }

func (f fakeCourses) UpdateOrCreate(ctx context.Context, exec sqlx.ExtContext, semesterID, cmsID string, fields models.CourseFields) (models.UpsertResult[models.Course], error) {
	result := models.UpsertResult[models.Course]{Changes: models.FieldChanges{}}
	if f.store.failCourseUpsert != nil {
		return result, f.store.failCourseUpsert
	}
	key := semesterID + "|" + cmsID
	course, ok := f.store.courses[key]
	if !ok {
		course = models.Course{ID: f.store.nextID("course"), SemesterID: semesterID, CMSID: cmsID, NameDE: fields.NameDE, NameEN: fields.NameEN, TypeID: fields.TypeID}
		f.store.courses[key] = course
		result.Entity = &course
		result.Created = true
		return result, nil
	}
	if course.NameDE != fields.NameDE {
		result.Changes["name_de"] = models.FieldChange{Old: course.NameDE, New: fields.NameDE}
	}
	if course.NameEN != fields.NameEN {
		result.Changes["name_en"] = models.FieldChange{Old: course.NameEN, New: fields.NameEN}
	}
	if course.TypeID != fields.TypeID {
		result.Changes["type_id"] = models.FieldChange{Old: course.TypeID, New: fields.TypeID}
	}
	course.NameDE, course.NameEN, course.TypeID = fields.NameDE, fields.NameEN, fields.TypeID
	f.store.courses[key] = course
	result.Entity = &course
	return result, nil
}

func (f fakeCourses) ReplacePrograms(ctx context.Context, exec sqlx.ExtContext, courseID string, programIDs []string) (bool, error) {
	return replaceMemorySet(f.store.coursePrograms, courseID, programIDs), nil
}

func (f fakeCourses) ReplaceResponsibles(ctx context.Context, exec sqlx.ExtContext, courseID string, userIDs []string) (bool, error) {
	return replaceMemorySet(f.store.courseResponsibles, courseID, userIDs), nil
}

type fakeEvaluations struct{ store *memoryImportStore }

func (f fakeEvaluations) GetOrCreate(ctx context.Context, exec sqlx.ExtContext, courseID, cmsID string, defaults models.EvaluationFields) (models.UpsertResult[models.Evaluation], error) {
	result := models.UpsertResult[models.Evaluation]{Changes: models.FieldChanges{}}
	key := courseID + "|" + cmsID
	evaluation, ok := f.store.evaluations[key]
	if !ok {
		evaluation = models.Evaluation{
			ID:                                 f.store.nextID("evaluation"),
			CourseID:                           courseID,
			CMSID:                              cmsID,
			State:                              models.EvaluationStateNew,
			NameDE:                             defaults.NameDE,
			NameEN:                             defaults.NameEN,
			VoteStartDatetime:                  defaults.VoteStartDatetime,
			VoteEndDate:                        defaults.VoteEndDate,
			WaitForGradeUploadBeforePublishing: defaults.WaitForGradeUploadBeforePublishing,
		}
		f.store.evaluations[key] = evaluation
		f.store.contributions[evaluation.ID+"|"] = true
		result.Created = true
	}
	result.Entity = &evaluation
	return result, nil
}

func (f fakeEvaluations) UpdateWithChanges(ctx context.Context, exec sqlx.ExtContext, evaluation *models.Evaluation, fields models.EvaluationFields) (models.FieldChanges, error) {
	changes := models.FieldChanges{}
	if evaluation.NameDE != fields.NameDE {
		changes["name_de"] = models.FieldChange{Old: evaluation.NameDE, New: fields.NameDE}
	}
	if evaluation.NameEN != fields.NameEN {
		changes["name_en"] = models.FieldChange{Old: evaluation.NameEN, New: fields.NameEN}
	}
	if !evaluation.VoteStartDatetime.Equal(fields.VoteStartDatetime) {
		changes["vote_start_datetime"] = models.FieldChange{Old: evaluation.VoteStartDatetime, New: fields.VoteStartDatetime}
	}
	if !evaluation.VoteEndDate.Equal(fields.VoteEndDate) {
		changes["vote_end_date"] = models.FieldChange{Old: evaluation.VoteEndDate, New: fields.VoteEndDate}
	}
	if evaluation.WaitForGradeUploadBeforePublishing != fields.WaitForGradeUploadBeforePublishing {
		changes["wait_for_grade_upload_before_publishing"] = models.FieldChange{Old: evaluation.WaitForGradeUploadBeforePublishing, New: fields.WaitForGradeUploadBeforePublishing}
	}
	evaluation.NameDE, evaluation.NameEN = fields.NameDE, fields.NameEN
	evaluation.VoteStartDatetime, evaluation.VoteEndDate = fields.VoteStartDatetime, fields.VoteEndDate
	evaluation.WaitForGradeUploadBeforePublishing = fields.WaitForGradeUploadBeforePublishing

	stored := *evaluation
	stored.Course = nil
	f.store.evaluations[evaluation.CourseID+"|"+evaluation.CMSID] = stored
	return changes, nil
}

func (f fakeEvaluations) ReplaceParticipants(ctx context.Context, exec sqlx.ExtContext, evaluationID string, userIDs []string) (bool, error) {
	return replaceMemorySet(f.store.participants, evaluationID, userIDs), nil
}

type fakeContributions struct{ store *memoryImportStore }

func (f fakeContributions) GetOrCreate(ctx context.Context, exec sqlx.ExtContext, evaluationID, contributorID string) (models.UpsertResult[models.Contribution], error) {
	key := evaluationID + "|" + contributorID
	result := models.UpsertResult[models.Contribution]{Changes: models.FieldChanges{}}
	if !f.store.contributions[key] {
		f.store.contributions[key] = true
		result.Created = true
	}
	result.Entity = &models.Contribution{EvaluationID: evaluationID, ContributorID: sql.NullString{String: contributorID, Valid: true}}
	return result, nil
}

func replaceMemorySet(sets map[string][]string, owner string, members []string) bool {
	current := map[string]struct{}{}
	for _, m := range sets[owner] {
		current[m] = struct{}{}
	}
	wanted := map[string]struct{}{}
	for _, m := range members {
		wanted[m] = struct{}{}
	}
	sets[owner] = append([]string(nil), members...)
	if len(current) != len(wanted) {
		return true
	}
	for m := range wanted {
		if _, ok := current[m]; !ok {
			return true
		}
	}
	return false
}

type fakeImportLocker struct {
	held     bool
	err      error
	acquired int
	released int
}

func (f *fakeImportLocker) Acquire(ctx context.Context, semesterID string, ttl time.Duration) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if f.held {
		return "", false, nil
	}
	f.acquired++
	return "token", true, nil
}

func (f *fakeImportLocker) Release(ctx context.Context, semesterID, token string) error {
	f.released++
	return nil
}

type fakeArchiver struct {
	reports []*ImportReport
	err     error
}

func (f *fakeArchiver) Archive(ctx context.Context, report *ImportReport) ([]string, error) {
	f.reports = append(f.reports, report)
	if f.err != nil {
		return nil, f.err
	}
	return []string{report.SemesterID + "/report.txt"}, nil
}

var errBoom = errors.New("boom")
