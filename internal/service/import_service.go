package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/course-eval-api/internal/dto"
	"github.com/noah-isme/course-eval-api/internal/models"
	"github.com/noah-isme/course-eval-api/internal/repository"
	"github.com/noah-isme/course-eval-api/pkg/config"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/logger"
)

type importSemesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

type importUserRepository interface {
	UpdateOrCreateByEmail(ctx context.Context, exec sqlx.ExtContext, email string, fields models.UserProfileFields) (models.UpsertResult[models.UserProfile], error)
}

type courseTypeResolver interface {
	GetOrCreateByName(ctx context.Context, exec sqlx.ExtContext, name string) (*models.CourseType, error)
}

type programResolver interface {
	GetOrCreateByName(ctx context.Context, exec sqlx.ExtContext, name string) (*models.Program, error)
}

type importCourseRepository interface {
	UpdateOrCreate(ctx context.Context, exec sqlx.ExtContext, semesterID, cmsID string, fields models.CourseFields) (models.UpsertResult[models.Course], error)
	ReplacePrograms(ctx context.Context, exec sqlx.ExtContext, courseID string, programIDs []string) (bool, error)
	ReplaceResponsibles(ctx context.Context, exec sqlx.ExtContext, courseID string, userIDs []string) (bool, error)
}

type importEvaluationRepository interface {
	GetOrCreate(ctx context.Context, exec sqlx.ExtContext, courseID, cmsID string, defaults models.EvaluationFields) (models.UpsertResult[models.Evaluation], error)
	UpdateWithChanges(ctx context.Context, exec sqlx.ExtContext, evaluation *models.Evaluation, fields models.EvaluationFields) (models.FieldChanges, error)
	ReplaceParticipants(ctx context.Context, exec sqlx.ExtContext, evaluationID string, userIDs []string) (bool, error)
}

type importContributionRepository interface {
	GetOrCreate(ctx context.Context, exec sqlx.ExtContext, evaluationID, contributorID string) (models.UpsertResult[models.Contribution], error)
}

type importLocker interface {
	Acquire(ctx context.Context, semesterID string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, semesterID, token string) error
}

type importReportArchiver interface {
	Archive(ctx context.Context, report *ImportReport) ([]string, error)
}

// ImportServiceConfig tunes the importer.
type ImportServiceConfig struct {
	Location          *time.Location
	LockTTL           time.Duration
	EmailReplacements []config.EmailReplacement
}

// ImportServiceParams groups constructor dependencies.
type ImportServiceParams struct {
	DB            txProvider
	Semesters     importSemesterReader
	Users         importUserRepository
	CourseTypes   courseTypeResolver
	Programs      programResolver
	Courses       importCourseRepository
	Evaluations   importEvaluationRepository
	Contributions importContributionRepository
	Locker        importLocker
	Archiver      importReportArchiver
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	Config        ImportServiceConfig
}

// ImportService synchronises academic-records exports into courses and evaluations.
type ImportService struct {
	db            txProvider
	semesters     importSemesterReader
	users         importUserRepository
	courseTypes   courseTypeResolver
	programs      programResolver
	courses       importCourseRepository
	evaluations   importEvaluationRepository
	contributions importContributionRepository
	locker        importLocker
	archiver      importReportArchiver
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	reportLogger  *zap.Logger
	cfg           ImportServiceConfig
	now           func() time.Time
}

// NewImportService constructs an ImportService.
func NewImportService(params ImportServiceParams) *ImportService {
	cfg := params.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ImportService{
		db:            params.DB,
		semesters:     params.Semesters,
		users:         params.Users,
		courseTypes:   params.CourseTypes,
		programs:      params.Programs,
		courses:       params.Courses,
		evaluations:   params.Evaluations,
		contributions: params.Contributions,
		locker:        params.Locker,
		archiver:      params.Archiver,
		metrics:       params.Metrics,
		validator:     validate,
		logger:        log,
		reportLogger:  log.Named(logger.ImportLoggerName),
		cfg:           cfg,
		now:           time.Now,
	}
}

// ImportJSON decodes raw and imports it into the semester.
func (s *ImportService) ImportJSON(ctx context.Context, semesterID string, raw []byte) (*ImportReport, error) {
	var payload dto.ImportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		var missing *dto.MissingKeyError
		if errors.As(err, &missing) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "import payload is missing required keys")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "import payload is not valid JSON")
	}
	return s.Import(ctx, semesterID, &payload)
}

// Import reconciles payload into the semester inside a single transaction and reports what changed.
func (s *ImportService) Import(ctx context.Context, semesterID string, payload *dto.ImportPayload) (report *ImportReport, err error) {
	started := s.now()
	defer func() {
		s.metrics.ObserveImport(importOutcome(err), time.Since(started))
	}()

	if payload == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import payload is required")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}
	plan, err := s.prepare(payload)
	if err != nil {
		return nil, err
	}

	semester, err := s.semesters.FindByID(ctx, semesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	token, acquired, err := s.locker.Acquire(ctx, semester.ID, s.cfg.LockTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire import lock")
	}
	if !acquired {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an import for this semester is already running")
	}
	defer func() {
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), semester.ID, token); releaseErr != nil {
			s.logger.Warn("failed to release import lock", zap.String("semester_id", semester.ID), zap.Error(releaseErr))
		}
	}()

	report, err = s.runInTx(ctx, semester, payload, plan)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, s.reportLogger).Info(report.Log(), zap.String("semester_id", semester.ID))
	s.metrics.RecordImportReport(report)
	if s.archiver != nil {
		if _, archiveErr := s.archiver.Archive(ctx, report); archiveErr != nil {
			logger.FromContext(ctx, s.logger).Error("failed to archive import report", zap.String("semester_id", semester.ID), zap.Error(archiveErr))
		}
	}
	return report, nil
}

func (s *ImportService) runInTx(ctx context.Context, semester *models.Semester, payload *dto.ImportPayload, plan *importPlan) (report *ImportReport, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, s.classify(err, "failed to begin import transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	run := &importRun{
		svc:      s,
		exec:     tx,
		semester: semester,
		plan:     plan,
		profiles: make(map[string]*models.UserProfile),
		types:    make(map[string]*models.CourseType),
		programs: make(map[string]*models.Program),
		courses:  make(map[string]*models.Course),
		report:   &ImportReport{SemesterID: semester.ID},
	}
	if err = run.importStudents(ctx, payload.Students); err != nil {
		return nil, s.classify(err, "failed to import students")
	}
	if err = run.importLecturers(ctx, payload.Lecturers); err != nil {
		return nil, s.classify(err, "failed to import lecturers")
	}
	if err = run.importEvents(ctx, payload.Events); err != nil {
		return nil, s.classify(err, "failed to import events")
	}

	if err = tx.Commit(); err != nil {
		return nil, s.classify(err, "failed to commit import")
	}
	run.report.FinishedAt = s.now().In(s.cfg.Location)
	return run.report, nil
}

func (s *ImportService) classify(err error, message string) error {
	if repository.IsRetryable(err) {
		return appErrors.Wrap(err, appErrors.ErrTransactionConflict.Code, appErrors.ErrTransactionConflict.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func importOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, appErrors.ErrValidation), errors.Is(err, appErrors.ErrNotFound):
		return "rejected"
	case errors.Is(err, appErrors.ErrTransactionConflict), errors.Is(err, appErrors.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// importPlan is the result of checking a payload before any row is touched.
type importPlan struct {
	emails  map[string]string
	windows map[string]evaluationWindow
}

// prepare resolves everything that can fail without the database so a malformed payload never
// opens a transaction.
func (s *ImportService) prepare(payload *dto.ImportPayload) (*importPlan, error) {
	plan := &importPlan{
		emails:  make(map[string]string),
		windows: make(map[string]evaluationWindow),
	}
	var problems []string

	addPerson := func(gguid, email string) {
		cleaned := CleanEmail(email, s.cfg.EmailReplacements)
		if cleaned == "" {
			problems = append(problems, fmt.Sprintf("person %s has an empty email", gguid))
			return
		}
		plan.emails[gguid] = cleaned
	}
	for _, student := range payload.Students {
		addPerson(student.GGUID, student.Email)
	}
	for _, lecturer := range payload.Lecturers {
		addPerson(lecturer.GGUID, lecturer.Email)
	}

	courseEvents := make(map[string]struct{})
	for _, event := range payload.Events {
		if !event.IsExam {
			courseEvents[event.GGUID] = struct{}{}
		}
	}

	for _, event := range payload.Events {
		end, err := courseEnd(event.Appointments, s.cfg.Location)
		if err != nil {
			problems = append(problems, fmt.Sprintf("event %s: %v", event.GGUID, err))
		} else if event.IsExam {
			plan.windows[event.GGUID] = examWindow(end)
		} else {
			plan.windows[event.GGUID] = courseWindow(end)
		}

		if event.IsExam {
			if _, ok := courseEvents[event.RelatedEvents.GGUID]; !ok {
				problems = append(problems, fmt.Sprintf("exam %s references unknown course event %q", event.GGUID, event.RelatedEvents.GGUID))
			}
		}
		for _, related := range append(append([]dto.ImportRelated{}, event.Lecturers...), event.Students...) {
			if _, ok := plan.emails[related.GGUID]; !ok {
				problems = append(problems, fmt.Sprintf("event %s references unknown person %s", event.GGUID, related.GGUID))
			}
		}
	}

	if len(problems) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid import payload", problems)
	}
	return plan, nil
}

// importRun carries the per-run entity caches; it lives for exactly one Import call.
type importRun struct {
	svc      *ImportService
	exec     sqlx.ExtContext
	semester *models.Semester
	plan     *importPlan

	profiles map[string]*models.UserProfile
	types    map[string]*models.CourseType
	programs map[string]*models.Program
	courses  map[string]*models.Course

	report *ImportReport
}

func (r *importRun) importStudents(ctx context.Context, students []dto.ImportStudent) error {
	for _, student := range students {
		fields := models.UserProfileFields{LastName: student.Name, FirstNameGiven: student.ChristianName}
		if err := r.importPerson(ctx, student.GGUID, fields); err != nil {
			return err
		}
	}
	return nil
}

func (r *importRun) importLecturers(ctx context.Context, lecturers []dto.ImportLecturer) error {
	for _, lecturer := range lecturers {
		fields := models.UserProfileFields{
			LastName:       lecturer.Name,
			FirstNameGiven: lecturer.ChristianName,
			Title:          lecturer.TitleFront,
			SetTitle:       true,
		}
		if err := r.importPerson(ctx, lecturer.GGUID, fields); err != nil {
			return err
		}
	}
	return nil
}

func (r *importRun) importPerson(ctx context.Context, gguid string, fields models.UserProfileFields) error {
	result, err := r.svc.users.UpdateOrCreateByEmail(ctx, r.exec, r.plan.emails[gguid], fields)
	if err != nil {
		return err
	}
	if result.Changes.Has("last_name") || result.Changes.Has("first_name_given") {
		r.report.NameChanges = append(r.report.NameChanges, nameChangeFrom(result.Entity, result.Changes))
	}
	r.profiles[gguid] = result.Entity
	return nil
}

func (r *importRun) profileIDs(related []dto.ImportRelated) []string {
	ids := make([]string, 0, len(related))
	for _, rel := range related {
		ids = append(ids, r.profiles[rel.GGUID].ID)
	}
	return ids
}

func (r *importRun) courseType(ctx context.Context, name string) (*models.CourseType, error) {
	if cached, ok := r.types[name]; ok {
		return cached, nil
	}
	courseType, err := r.svc.courseTypes.GetOrCreateByName(ctx, r.exec, name)
	if err != nil {
		return nil, err
	}
	r.types[name] = courseType
	return courseType, nil
}

func (r *importRun) program(ctx context.Context, name string) (*models.Program, error) {
	if cached, ok := r.programs[name]; ok {
		return cached, nil
	}
	program, err := r.svc.programs.GetOrCreateByName(ctx, r.exec, name)
	if err != nil {
		return nil, err
	}
	r.programs[name] = program
	return program, nil
}

// importEvents handles course events before exams so every exam finds its course.
func (r *importRun) importEvents(ctx context.Context, events []dto.ImportEvent) error {
	for _, event := range events {
		if event.IsExam {
			continue
		}
		course, err := r.importCourse(ctx, event)
		if err != nil {
			return err
		}
		if err := r.importEvaluation(ctx, course, event); err != nil {
			return err
		}
	}
	for _, event := range events {
		if !event.IsExam {
			continue
		}
		if err := r.importEvaluation(ctx, r.courses[event.RelatedEvents.GGUID], event); err != nil {
			return err
		}
	}
	return nil
}

func (r *importRun) importCourse(ctx context.Context, event dto.ImportEvent) (*models.Course, error) {
	courseType, err := r.courseType(ctx, event.Type)
	if err != nil {
		return nil, err
	}
	programIDs := make([]string, 0, len(event.Courses))
	for _, c := range event.Courses {
		program, err := r.program(ctx, c.CPRID)
		if err != nil {
			return nil, err
		}
		programIDs = append(programIDs, program.ID)
	}

	result, err := r.svc.courses.UpdateOrCreate(ctx, r.exec, r.semester.ID, event.GGUID, models.CourseFields{
		NameDE: event.Title,
		NameEN: event.TitleEN,
		TypeID: courseType.ID,
	})
	if err != nil {
		return nil, err
	}
	course := result.Entity
	if _, err := r.svc.courses.ReplacePrograms(ctx, r.exec, course.ID, programIDs); err != nil {
		return nil, err
	}
	if _, err := r.svc.courses.ReplaceResponsibles(ctx, r.exec, course.ID, r.profileIDs(event.Lecturers)); err != nil {
		return nil, err
	}

	if result.Changed() {
		r.report.UpdatedCourses = append(r.report.UpdatedCourses, *course)
	}
	if result.Created {
		r.report.NewCourses = append(r.report.NewCourses, *course)
	}
	r.courses[event.GGUID] = course
	return course, nil
}

func (r *importRun) importEvaluation(ctx context.Context, course *models.Course, event dto.ImportEvent) error {
	window := r.plan.windows[event.GGUID]
	defaults := models.EvaluationFields{
		VoteStartDatetime: window.Start,
		VoteEndDate:       window.EndDate,
	}
	if event.IsExam {
		defaults.NameDE, defaults.NameEN = examNameDE, examNameEN
	}
	for _, c := range event.Courses {
		if c.Scale != "" {
			defaults.WaitForGradeUploadBeforePublishing = true
			break
		}
	}

	result, err := r.svc.evaluations.GetOrCreate(ctx, r.exec, course.ID, event.GGUID, defaults)
	if err != nil {
		return err
	}
	evaluation := result.Entity
	evaluation.Course = course

	if evaluation.State.Locked() {
		r.report.AttemptedChanges = append(r.report.AttemptedChanges, *evaluation)
	} else {
		changed, err := r.syncEvaluation(ctx, evaluation, defaults, event)
		if err != nil {
			return err
		}
		if changed && !result.Created {
			r.report.UpdatedEvaluations = append(r.report.UpdatedEvaluations, *evaluation)
		}
	}

	if result.Created {
		r.report.NewEvaluations = append(r.report.NewEvaluations, *evaluation)
	}
	return nil
}

func (r *importRun) syncEvaluation(ctx context.Context, evaluation *models.Evaluation, defaults models.EvaluationFields, event dto.ImportEvent) (bool, error) {
	changes, err := r.svc.evaluations.UpdateWithChanges(ctx, r.exec, evaluation, defaults)
	if err != nil {
		return false, err
	}
	participantsChanged, err := r.svc.evaluations.ReplaceParticipants(ctx, r.exec, evaluation.ID, r.profileIDs(event.Students))
	if err != nil {
		return false, err
	}
	lecturersChanged := false
	for _, lecturer := range event.Lecturers {
		contribution, err := r.svc.contributions.GetOrCreate(ctx, r.exec, evaluation.ID, r.profiles[lecturer.GGUID].ID)
		if err != nil {
			return false, err
		}
		if contribution.Created || contribution.Changed() {
			lecturersChanged = true
		}
	}
	return len(changes) > 0 || participantsChanged || lecturersChanged, nil
}
