// Command import_catalog loads an exam catalog YAML file into the database.
// The import is additive: rows that already exist under the same parent with
// the same name are reused, so re-importing an updated file only creates what
// is new. It is an operator utility, not part of runtime.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"

	"questgen/internal/catalog"
	"questgen/internal/config"
	"questgen/internal/observability"

	_ "github.com/lib/pq"
	"go.uber.org/zap/zapcore"
)

func main() {
	var catalogPath string
	var dbURL string
	var dryRun bool
	var verbose bool

	flag.StringVar(&catalogPath, "catalog", "data/catalog.yaml", "Path to the catalog YAML file")
	flag.StringVar(&dbURL, "db", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	flag.BoolVar(&dryRun, "dry-run", false, "Validate the catalog file and print what it contains without writing")
	flag.BoolVar(&verbose, "verbose", false, "Log every seeded topic")
	flag.Parse()

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		log.Fatalf("catalog file rejected: %v", err)
	}

	exams, courses, topics, questions := countCatalog(cat)
	log.Printf("Loaded %s: %d exams, %d courses, %d topics, %d bank questions", catalogPath, exams, courses, topics, questions)

	if dryRun {
		log.Println("Dry run, nothing written")
		return
	}

	if dbURL == "" {
		log.Fatal("database URL must be provided via -db or DATABASE_URL")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("warning: failed to close database: %v", err)
		}
	}()
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to reach database: %v", err)
	}

	logLevel := zapcore.WarnLevel
	if verbose {
		logLevel = zapcore.InfoLevel
	}
	logger := observability.NewLoggerWithLevel(&config.OpenTelemetryConfig{EnableLogging: true}, logLevel)

	result, err := catalog.NewSeeder(db, logger).Seed(context.Background(), cat)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}

	stats := result.Stats
	log.Printf("Import complete: %d exams, %d courses, %d subjects, %d units, %d chapters, %d topics, %d parts, %d slots, %d bank questions created (%d rows already present)",
		stats.ExamsCreated, stats.CoursesCreated, stats.SubjectsCreated, stats.UnitsCreated,
		stats.ChaptersCreated, stats.TopicsCreated, stats.PartsCreated, stats.SlotsCreated,
		stats.QuestionsCreated, stats.Reused)
	for key, ids := range result.Courses {
		log.Printf("  %s: course_id=%s (%d topics)", key, ids.CourseID, len(ids.Topics))
	}
}

func countCatalog(cat *catalog.Catalog) (exams, courses, topics, questions int) {
	exams = len(cat.Exams)
	for _, exam := range cat.Exams {
		courses += len(exam.Courses)
		for _, course := range exam.Courses {
			for _, subject := range course.Subjects {
				for _, unit := range subject.Units {
					for _, chapter := range unit.Chapters {
						topics += len(chapter.Topics)
						for _, topic := range chapter.Topics {
							questions += len(topic.BankQuestions)
						}
					}
				}
			}
		}
	}
	return exams, courses, topics, questions
}
