package main

import (
	"context"

	"github.com/noah-isme/academia-api/internal/models"
	"github.com/noah-isme/academia-api/internal/validation"
)

type courseSeed struct {
	Title       string
	Description string
	StartsIn    int
	Active      bool
}

type enrollmentSeed struct {
	Email  string
	Course string
	Grade  *float64
}

func grade(v float64) *float64 { return &v }

var seedStudents = []models.Student{
	{Name: "Juan Pérez", Email: "juan.perez@email.com"},
	{Name: "Lucía Gómez", Email: "lucia.gomez@email.com"},
	{Name: "Pedro Torres", Email: "pedro.torres@email.com"},
	{Name: "Ana Ruiz", Email: "ana.ruiz@email.com"},
	{Name: "Miguel Herrera", Email: "miguel.herrera@email.com"},
}

var seedCourses = []courseSeed{
	{Title: "Matemáticas Básicas", Description: "Curso introductorio a las matemáticas.", StartsIn: 10, Active: true},
	{Title: "Historia Universal", Description: "Curso sobre los eventos históricos más importantes.", StartsIn: 5, Active: true},
	{Title: "Física Moderna", Description: "Relatividad, mecánica cuántica y más.", StartsIn: 20, Active: false},
	{Title: "Programación en Python", Description: "Curso de introducción a la programación con Python.", StartsIn: 15, Active: true},
}

// Ana Ruiz targets the inactive course and is filtered out by the rules.
var seedEnrollments = []enrollmentSeed{
	{Email: "juan.perez@email.com", Course: "Matemáticas Básicas", Grade: grade(8.5)},
	{Email: "lucia.gomez@email.com", Course: "Matemáticas Básicas", Grade: grade(7.0)},
	{Email: "pedro.torres@email.com", Course: "Historia Universal", Grade: grade(9.0)},
	{Email: "ana.ruiz@email.com", Course: "Física Moderna"},
	{Email: "miguel.herrera@email.com", Course: "Historia Universal", Grade: grade(6.8)},
}

// buildCourses dates the catalogue relative to today.
func buildCourses(today models.Date) []models.Course {
	courses := make([]models.Course, 0, len(seedCourses))
	for _, c := range seedCourses {
		courses = append(courses, models.Course{
			Title:       c.Title,
			Description: c.Description,
			StartDate:   today.AddDays(c.StartsIn),
			Active:      c.Active,
		})
	}
	return courses
}

// plannedPairs is the in-memory pair lookup used while planning a batch.
type plannedPairs map[[2]string]struct{}

func (p plannedPairs) ExistsForPair(_ context.Context, studentID, courseID, _ string) (bool, error) {
	_, ok := p[[2]string{studentID, courseID}]
	return ok, nil
}

type skipped struct {
	Seed   enrollmentSeed
	Reason error
}

// planEnrollments resolves the enrollment seeds against stored students and
// courses and keeps only those the enrollment rules accept.
func planEnrollments(ctx context.Context, rules *validation.EnrollmentRules, students []models.Student, courses []models.Course, seeds []enrollmentSeed) ([]models.Enrollment, []skipped, error) {
	studentByEmail := make(map[string]models.Student, len(students))
	for _, s := range students {
		studentByEmail[s.Email] = s
	}
	courseByTitle := make(map[string]models.Course, len(courses))
	for _, c := range courses {
		courseByTitle[c.Title] = c
	}

	pairs := plannedPairs{}
	var (
		accepted []models.Enrollment
		rejected []skipped
	)
	for _, seed := range seeds {
		student, ok := studentByEmail[seed.Email]
		if !ok {
			rejected = append(rejected, skipped{Seed: seed, Reason: errUnknownStudent})
			continue
		}
		course, ok := courseByTitle[seed.Course]
		if !ok {
			rejected = append(rejected, skipped{Seed: seed, Reason: errUnknownCourse})
			continue
		}
		candidate := validation.Candidate{StudentID: student.ID, CourseID: course.ID}
		if err := rules.Check(ctx, candidate, course, pairs); err != nil {
			if _, isRule := validation.AsViolations(err); !isRule {
				return nil, nil, err
			}
			rejected = append(rejected, skipped{Seed: seed, Reason: err})
			continue
		}
		pairs[[2]string{student.ID, course.ID}] = struct{}{}
		accepted = append(accepted, models.Enrollment{StudentID: student.ID, CourseID: course.ID, Grade: seed.Grade})
	}
	return accepted, rejected, nil
}
