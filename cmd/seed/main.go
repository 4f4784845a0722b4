package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medway/exam-backend/internal/config"
	"github.com/medway/exam-backend/internal/database"
	"github.com/medway/exam-backend/internal/logger"
	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/repository"
)

// Development seeder: a handful of students, a question bank and one
// exam wired together. Safe to rerun; duplicates are skipped.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	examRepo := repository.NewExamRepository(pool)

	fmt.Println("=== Seeding Students ===")

	students := []model.Student{
		{Name: "Alice Johnson", Email: "alice.johnson@example.com"},
		{Name: "Bruno Costa", Email: "bruno.costa@example.com"},
		{Name: "Chen Wei", Email: "chen.wei@example.com"},
		{Name: "Diana Okafor", Email: "diana.okafor@example.com"},
		{Name: "Emre Yilmaz", Email: "emre.yilmaz@example.com"},
	}

	for i := range students {
		s := &students[i]
		if err := studentRepo.Create(ctx, s); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				fmt.Printf("Student %s already exists, skipping\n", s.Email)
				continue
			}
			log.Fatal().Err(err).Str("email", s.Email).Msg("Failed to create student")
		}
		fmt.Printf("Created student %d: %s\n", s.ID, s.Name)
	}

	fmt.Println("=== Seeding Questions ===")

	questions := []model.Question{
		{
			Content:       "Which layer of the TCP/IP model is responsible for end-to-end delivery?",
			SelectionType: model.SelectionSingle,
			Alternatives: []model.Alternative{
				{Option: 1, Content: "Link"},
				{Option: 2, Content: "Internet"},
				{Option: 3, Content: "Transport", IsCorrect: true},
				{Option: 4, Content: "Application"},
			},
		},
		{
			Content:       "What is the time complexity of binary search on a sorted slice?",
			SelectionType: model.SelectionSingle,
			Alternatives: []model.Alternative{
				{Option: 1, Content: "O(1)"},
				{Option: 2, Content: "O(log n)", IsCorrect: true},
				{Option: 3, Content: "O(n)"},
				{Option: 4, Content: "O(n log n)"},
			},
		},
		{
			Content:       "Which SQL clause filters rows after aggregation?",
			SelectionType: model.SelectionSingle,
			Alternatives: []model.Alternative{
				{Option: 1, Content: "WHERE"},
				{Option: 2, Content: "GROUP BY"},
				{Option: 3, Content: "HAVING", IsCorrect: true},
				{Option: 4, Content: "ORDER BY"},
				{Option: 5, Content: "LIMIT"},
			},
		},
		{
			Content:       "Which of the following are ACID properties?",
			SelectionType: model.SelectionMultiple,
			Alternatives: []model.Alternative{
				{Option: 1, Content: "Atomicity", IsCorrect: true},
				{Option: 2, Content: "Concurrency"},
				{Option: 3, Content: "Isolation", IsCorrect: true},
				{Option: 4, Content: "Durability", IsCorrect: true},
			},
		},
		{
			Content:       "What does DNS primarily resolve?",
			SelectionType: model.SelectionSingle,
			Alternatives: []model.Alternative{
				{Option: 1, Content: "Hostnames to IP addresses", IsCorrect: true},
				{Option: 2, Content: "MAC addresses to ports"},
				{Option: 3, Content: "URLs to certificates"},
				{Option: 4, Content: "Processes to threads"},
			},
		},
	}

	for i := range questions {
		q := &questions[i]
		if err := questionRepo.Create(ctx, q); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				fmt.Printf("Question %q already exists, skipping\n", truncate(q.Content, 40))
				continue
			}
			log.Fatal().Err(err).Msg("Failed to create question")
		}
		fmt.Printf("Created question %d\n", q.ID)
	}

	fmt.Println("=== Seeding Exam ===")

	exam := &model.Exam{Name: "Computer Science Fundamentals"}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %d: %s\n", exam.ID, exam.Name)

	number := 1
	for _, q := range questions {
		if q.ID == 0 {
			continue // skipped as duplicate, no id to attach
		}
		eq := &model.ExamQuestion{ExamID: exam.ID, QuestionID: q.ID, Number: number}
		if err := examRepo.AttachQuestion(ctx, eq); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			log.Fatal().Err(err).Int("question_id", q.ID).Msg("Failed to attach question")
		}
		number++
	}

	fmt.Printf("=== Done: exam %d has %d questions ===\n", exam.ID, number-1)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
