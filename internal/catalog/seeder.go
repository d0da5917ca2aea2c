package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"questgen/internal/observability"
	contextutils "questgen/internal/utils"

	"github.com/lib/pq"
)

// CourseIDs holds the database IDs for one seeded course so callers (E2E
// tests, operators) can reference catalog rows without querying by name.
type CourseIDs struct {
	ExamID   string            `json:"exam_id"`
	CourseID string            `json:"course_id"`
	Topics   map[string]string `json:"topics"`
	Parts    map[string]string `json:"parts"`
	Slots    map[string]string `json:"slots"`
}

// Stats counts what a seeding run actually inserted.
type Stats struct {
	ExamsCreated     int
	CoursesCreated   int
	PartsCreated     int
	SlotsCreated     int
	SubjectsCreated  int
	UnitsCreated     int
	ChaptersCreated  int
	TopicsCreated    int
	QuestionsCreated int
	Reused           int
}

// Result is the outcome of one seeding run: IDs keyed by "exam/course"
// plus insert counters.
type Result struct {
	Courses map[string]CourseIDs
	Stats   Stats
}

// Seeder inserts catalog entries, reusing rows that already exist under the
// same parent with the same name. Importing the same file twice is a no-op.
type Seeder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSeeder creates a seeder bound to the given database.
func NewSeeder(db *sql.DB, logger *observability.Logger) *Seeder {
	return &Seeder{db: db, logger: logger}
}

// Seed walks the catalog tree and inserts every level, skipping rows that
// already exist.
func (s *Seeder) Seed(ctx context.Context, cat *Catalog) (*Result, error) {
	if s.db == nil {
		return nil, contextutils.ErrorWithContextf("database connection not available")
	}

	result := &Result{Courses: make(map[string]CourseIDs)}
	for _, exam := range cat.Exams {
		examID, err := s.ensure(ctx, &result.Stats, &result.Stats.ExamsCreated,
			`SELECT id FROM exams WHERE name = $1`,
			`INSERT INTO exams (name, description) VALUES ($1, $2) RETURNING id`,
			[]interface{}{exam.Name},
			[]interface{}{exam.Name, exam.Description})
		if err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to seed exam %s", exam.Name)
		}

		for _, course := range exam.Courses {
			ids := CourseIDs{
				ExamID: examID,
				Topics: make(map[string]string),
				Parts:  make(map[string]string),
				Slots:  make(map[string]string),
			}

			ids.CourseID, err = s.ensure(ctx, &result.Stats, &result.Stats.CoursesCreated,
				`SELECT id FROM courses WHERE exam_id = $1 AND name = $2`,
				`INSERT INTO courses (exam_id, name, description) VALUES ($1, $2, $3) RETURNING id`,
				[]interface{}{examID, course.Name},
				[]interface{}{examID, course.Name, course.Description})
			if err != nil {
				return nil, contextutils.WrapErrorf(err, "failed to seed course %s", course.Name)
			}

			for _, partName := range course.Parts {
				partID, err := s.ensure(ctx, &result.Stats, &result.Stats.PartsCreated,
					`SELECT id FROM parts WHERE course_id = $1 AND part_name = $2`,
					`INSERT INTO parts (course_id, part_name) VALUES ($1, $2) RETURNING id`,
					[]interface{}{ids.CourseID, partName},
					[]interface{}{ids.CourseID, partName})
				if err != nil {
					return nil, contextutils.WrapErrorf(err, "failed to seed part %s", partName)
				}
				ids.Parts[partName] = partID
			}

			for _, slotName := range course.Slots {
				slotID, err := s.ensure(ctx, &result.Stats, &result.Stats.SlotsCreated,
					`SELECT id FROM slots WHERE course_id = $1 AND slot_name = $2`,
					`INSERT INTO slots (course_id, slot_name) VALUES ($1, $2) RETURNING id`,
					[]interface{}{ids.CourseID, slotName},
					[]interface{}{ids.CourseID, slotName})
				if err != nil {
					return nil, contextutils.WrapErrorf(err, "failed to seed slot %s", slotName)
				}
				ids.Slots[slotName] = slotID
			}

			for _, subject := range course.Subjects {
				subjectID, err := s.ensure(ctx, &result.Stats, &result.Stats.SubjectsCreated,
					`SELECT id FROM subjects WHERE course_id = $1 AND name = $2`,
					`INSERT INTO subjects (course_id, name) VALUES ($1, $2) RETURNING id`,
					[]interface{}{ids.CourseID, subject.Name},
					[]interface{}{ids.CourseID, subject.Name})
				if err != nil {
					return nil, contextutils.WrapErrorf(err, "failed to seed subject %s", subject.Name)
				}

				for _, unit := range subject.Units {
					unitID, err := s.ensure(ctx, &result.Stats, &result.Stats.UnitsCreated,
						`SELECT id FROM units WHERE subject_id = $1 AND name = $2`,
						`INSERT INTO units (subject_id, name) VALUES ($1, $2) RETURNING id`,
						[]interface{}{subjectID, unit.Name},
						[]interface{}{subjectID, unit.Name})
					if err != nil {
						return nil, contextutils.WrapErrorf(err, "failed to seed unit %s", unit.Name)
					}

					for _, chapter := range unit.Chapters {
						chapterID, err := s.ensure(ctx, &result.Stats, &result.Stats.ChaptersCreated,
							`SELECT id FROM chapters WHERE unit_id = $1 AND name = $2`,
							`INSERT INTO chapters (unit_id, name, description) VALUES ($1, $2, $3) RETURNING id`,
							[]interface{}{unitID, chapter.Name},
							[]interface{}{unitID, chapter.Name, chapter.Description})
						if err != nil {
							return nil, contextutils.WrapErrorf(err, "failed to seed chapter %s", chapter.Name)
						}

						for _, topic := range chapter.Topics {
							topicID, err := s.ensure(ctx, &result.Stats, &result.Stats.TopicsCreated,
								`SELECT id FROM topics WHERE chapter_id = $1 AND name = $2`,
								`INSERT INTO topics (chapter_id, name, description, weightage) VALUES ($1, $2, $3, $4) RETURNING id`,
								[]interface{}{chapterID, topic.Name},
								[]interface{}{chapterID, topic.Name, topic.Description, topic.Weightage})
							if err != nil {
								return nil, contextutils.WrapErrorf(err, "failed to seed topic %s", topic.Name)
							}
							ids.Topics[topic.Name] = topicID

							for i, question := range topic.BankQuestions {
								if err := s.seedBankQuestion(ctx, &result.Stats, topicID, question); err != nil {
									return nil, contextutils.WrapErrorf(err, "failed to seed bank question %d for topic %s", i, topic.Name)
								}
							}

							s.logger.Info(ctx, "Seeded topic", map[string]interface{}{
								"topic":          topic.Name,
								"weightage":      topic.Weightage,
								"bank_questions": len(topic.BankQuestions),
							})
						}
					}
				}
			}

			result.Courses[fmt.Sprintf("%s/%s", exam.Name, course.Name)] = ids
		}
	}

	return result, nil
}

// ensure returns the row ID for selectQuery, inserting with insertQuery when
// the row does not exist yet. created is bumped on insert, stats.Reused on hit.
func (s *Seeder) ensure(ctx context.Context, stats *Stats, created *int, selectQuery, insertQuery string, selectArgs, insertArgs []interface{}) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, selectQuery, selectArgs...).Scan(&id)
	if err == nil {
		stats.Reused++
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	if err := s.db.QueryRowContext(ctx, insertQuery, insertArgs...).Scan(&id); err != nil {
		return "", contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	*created++
	return id, nil
}

// seedBankQuestion inserts one reference question unless the same statement
// already exists for the topic.
func (s *Seeder) seedBankQuestion(ctx context.Context, stats *Stats, topicID string, question BankQuestion) error {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM questions_topic_wise WHERE topic_id = $1 AND question_statement = $2`,
		topicID, question.Statement).Scan(&existing)
	if err == nil {
		stats.Reused++
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions_topic_wise (topic_id, question_statement, question_type, options, answer, solution)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		topicID, question.Statement, question.Type,
		pq.StringArray(question.Options), question.Answer, question.Solution)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	stats.QuestionsCreated++
	return nil
}
