// Package catalog defines the exam catalog seed file format and loads it
// into the database. The same format feeds the test-database seeder and the
// production import tool.
package catalog

import (
	"os"

	"questgen/internal/models"
	contextutils "questgen/internal/utils"

	"gopkg.in/yaml.v3"
)

// Catalog is the root of a catalog seed file.
type Catalog struct {
	Exams []Exam `yaml:"exams"`
}

// Exam is a top-level exam with its courses.
type Exam struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Courses     []Course `yaml:"courses"`
}

// Course carries the paper structure (parts, slots) and the syllabus tree.
type Course struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Parts       []string  `yaml:"parts"`
	Slots       []string  `yaml:"slots"`
	Subjects    []Subject `yaml:"subjects"`
}

// Subject groups units under a course.
type Subject struct {
	Name  string `yaml:"name"`
	Units []Unit `yaml:"units"`
}

// Unit groups chapters under a subject.
type Unit struct {
	Name     string    `yaml:"name"`
	Chapters []Chapter `yaml:"chapters"`
}

// Chapter groups topics under a unit.
type Chapter struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Topics      []Topic `yaml:"topics"`
}

// Topic is a leaf of the syllabus tree with its reference question bank.
type Topic struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Weightage     float64        `yaml:"weightage"`
	BankQuestions []BankQuestion `yaml:"bank_questions"`
}

// BankQuestion is a previous-year question attached to a topic.
type BankQuestion struct {
	Statement string   `yaml:"statement"`
	Type      string   `yaml:"type"`
	Options   []string `yaml:"options"`
	Answer    string   `yaml:"answer"`
	Solution  string   `yaml:"solution"`
}

// Load reads and validates a catalog seed file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to read catalog file %s", path)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, contextutils.WrapError(err, "failed to parse catalog data")
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}

	return &cat, nil
}

// Validate checks the catalog for empty names, negative weightages and
// unknown question types before anything touches the database.
func (c *Catalog) Validate() error {
	if len(c.Exams) == 0 {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "catalog contains no exams")
	}

	for _, exam := range c.Exams {
		if exam.Name == "" {
			return contextutils.WrapError(contextutils.ErrInvalidInput, "exam name is required")
		}
		for _, course := range exam.Courses {
			if course.Name == "" {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "course name is required under exam %s", exam.Name)
			}
			for _, subject := range course.Subjects {
				if subject.Name == "" {
					return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "subject name is required under course %s", course.Name)
				}
				for _, unit := range subject.Units {
					if unit.Name == "" {
						return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unit name is required under subject %s", subject.Name)
					}
					for _, chapter := range unit.Chapters {
						if chapter.Name == "" {
							return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "chapter name is required under unit %s", unit.Name)
						}
						for _, topic := range chapter.Topics {
							if topic.Name == "" {
								return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "topic name is required under chapter %s", chapter.Name)
							}
							if topic.Weightage < 0 {
								return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "topic %s has negative weightage", topic.Name)
							}
							for i, question := range topic.BankQuestions {
								if question.Statement == "" {
									return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "bank question %d under topic %s has no statement", i, topic.Name)
								}
								if !models.QuestionType(question.Type).IsValid() {
									return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "bank question %d under topic %s has unknown type %q", i, topic.Name, question.Type)
								}
							}
						}
					}
				}
			}
		}
	}

	return nil
}
