package handler

import "github.com/gin-gonic/gin"

// Handlers groups every HTTP handler the server mounts. Reports may be nil
// when report generation is disabled.
type Handlers struct {
	Metrics  *MetricsHandler
	Classes  *ClassHandler
	Students *StudentHandler
	Settings *SettingsHandler
	Storage  *StorageHandler
	Backup   *BackupHandler
	Reports  *ReportHandler
}

// Register mounts the probes on r and the API under prefix.
func Register(r *gin.Engine, prefix string, h Handlers) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	api.GET("/classes", h.Classes.List)
	api.GET("/classes/:name", h.Classes.View)
	api.GET("/grading/bands/:level", h.Classes.Bands)
	api.GET("/grading/bands/:level/grade", h.Classes.Grade)

	students := api.Group("/students")
	students.GET("", h.Students.List)
	students.POST("", h.Students.Create)
	students.GET("/:id", h.Students.Get)
	students.PUT("/:id", h.Students.Update)
	students.DELETE("/:id", h.Students.Delete)
	students.POST("/:id/restore", h.Students.Restore)
	students.PATCH("/:id/subjects/:subjectId", h.Students.UpdateSubject)

	api.GET("/settings", h.Settings.Get)
	api.PUT("/settings", h.Settings.Update)

	api.GET("/storage", h.Storage.Status)
	api.POST("/storage/migrate", h.Storage.Migrate)
	api.POST("/storage/flush", h.Storage.Flush)

	api.POST("/backup/export", h.Backup.Export)
	api.POST("/backup/import", h.Backup.Import)

	if h.Reports != nil {
		api.POST("/reports", h.Reports.Create)
		api.GET("/reports/:id", h.Reports.Status)
		api.GET("/reports/download/:token", h.Reports.Download)
	}
}
