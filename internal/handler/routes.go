package handler

import "github.com/gin-gonic/gin"

// Handlers bundles the API handlers mounted under the API prefix.
type Handlers struct {
	Students    *StudentHandler
	Courses     *CourseHandler
	Enrollments *EnrollmentHandler
	Reports     *ReportHandler
	Metrics     *MetricsHandler
}

// Register mounts the resource routes on api.
func Register(api gin.IRouter, h Handlers) {
	students := api.Group("/students")
	students.GET("", h.Students.List)
	students.POST("", h.Students.Create)
	students.GET("/:id", h.Students.Get)
	students.PUT("/:id", h.Students.Update)
	students.PATCH("/:id", h.Students.Patch)
	students.DELETE("/:id", h.Students.Delete)
	students.GET("/:id/courses", h.Students.Courses)
	students.GET("/:id/report", h.Reports.StudentReport)
	students.GET("/:id/report/export", h.Reports.ExportStudentReport)

	courses := api.Group("/courses")
	courses.GET("", h.Courses.List)
	courses.POST("", h.Courses.Create)
	courses.GET("/:id", h.Courses.Get)
	courses.PUT("/:id", h.Courses.Update)
	courses.PATCH("/:id", h.Courses.Patch)
	courses.DELETE("/:id", h.Courses.Delete)
	courses.GET("/:id/students", h.Courses.Students)

	enrollments := api.Group("/enrollments")
	enrollments.GET("", h.Enrollments.List)
	enrollments.POST("", h.Enrollments.Create)
	enrollments.GET("/:id", h.Enrollments.Get)
	enrollments.PUT("/:id", h.Enrollments.Update)
	enrollments.PATCH("/:id", h.Enrollments.Patch)
	enrollments.DELETE("/:id", h.Enrollments.Delete)

	if h.Metrics != nil {
		api.GET("/metrics/summary", h.Metrics.Summary)
	}
}
