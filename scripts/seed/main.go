// Command seed loads the initial catalogue of students, courses and enrollments.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academia-api/internal/migrations"
	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/repository"
	"github.com/noah-isme/academia-api/internal/validation"
	"github.com/noah-isme/academia-api/pkg/config"
	"github.com/noah-isme/academia-api/pkg/database"
	"github.com/noah-isme/academia-api/pkg/logger"
)

var (
	errUnknownStudent = errors.New("unknown student")
	errUnknownCourse  = errors.New("unknown course")
)

func main() {
	var (
		timeout time.Duration
		migrate bool
	)
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "overall seed timeout")
	flag.BoolVar(&migrate, "migrate", true, "apply schema migrations before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if migrate {
		if _, err := migrations.NewMigrator(db, logr).Up(ctx); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	rules := validation.NewEnrollmentRules(nil)
	students := repository.NewStudentRepository(db)
	courses := repository.NewCourseRepository(db)
	enrollments := repository.NewEnrollmentRepository(db, rules)

	created, conflicts, err := seedStudentRows(ctx, students)
	if err != nil {
		logr.Fatal("failed to seed students", zap.Error(err))
	}
	for _, email := range conflicts {
		logr.Warn("student already present", zap.String("email", email))
	}
	if len(created) == 0 {
		logr.Info("catalogue already seeded, nothing to do", zap.Int("conflicts", len(conflicts)))
		return
	}
	if len(conflicts) > 0 {
		logr.Fatal("catalogue partially seeded, clean the database before re-running", zap.Int("conflicts", len(conflicts)))
	}

	catalogue := buildCourses(rules.Today())
	for i := range catalogue {
		if err := courses.Create(ctx, &catalogue[i]); err != nil {
			logr.Fatal("failed to seed course", zap.String("title", catalogue[i].Title), zap.Error(err))
		}
	}

	planned, rejected, err := planEnrollments(ctx, rules, created, catalogue, seedEnrollments)
	if err != nil {
		logr.Fatal("failed to plan enrollments", zap.Error(err))
	}
	for _, r := range rejected {
		logr.Info("enrollment skipped",
			zap.String("email", r.Seed.Email),
			zap.String("course", r.Seed.Course),
			zap.String("reason", r.Reason.Error()),
		)
	}
	if err := enrollments.BulkCreate(ctx, planned); err != nil {
		if database.IsUniqueViolation(err, database.ConstraintEnrollmentPair) {
			logr.Fatal("enrollment conflict while seeding", zap.Error(err))
		}
		logr.Fatal("failed to seed enrollments", zap.Error(err))
	}

	logr.Info("catalogue seeded",
		zap.Int("students", len(created)),
		zap.Int("courses", len(catalogue)),
		zap.Int("enrollments", len(planned)),
		zap.Int("skipped", len(rejected)),
	)
}

type studentCreator interface {
	Create(ctx context.Context, student *models.Student) error
}

// seedStudentRows inserts the seed students and returns the stored rows plus
// the emails that already existed.
func seedStudentRows(ctx context.Context, repo studentCreator) ([]models.Student, []string, error) {
	var (
		created   []models.Student
		conflicts []string
	)
	for _, s := range seedStudents {
		student := s
		if err := repo.Create(ctx, &student); err != nil {
			if database.IsUniqueViolation(err, database.ConstraintStudentEmail) {
				conflicts = append(conflicts, student.Email)
				continue
			}
			return nil, nil, err
		}
		created = append(created, student)
	}
	return created, conflicts, nil
}
