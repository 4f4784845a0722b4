package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/response"
	"github.com/medway/exam-backend/internal/service"
	"github.com/medway/exam-backend/internal/validator"
)

// ExamHandler handles exam catalog and statistics endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// List godoc
// GET /api/v1/exams
// Lists exams with optional name/question-count filters.
func (h *ExamHandler) List(c *gin.Context) {
	filter := model.ExamFilter{
		Name:         c.Query("name"),
		HasQuestions: boolQuery(c, "has_questions"),
		MinQuestions: intQuery(c, "min_questions"),
	}
	if filter.Name == "" {
		filter.Name = c.Query("search")
	}
	page, perPage := pagination(c)

	exams, total, err := h.examService.List(c.Request.Context(), filter, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if exams == nil {
		exams = []model.ExamSummary{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"count":   total,
		"results": exams,
	})
}

// Detail godoc
// GET /api/v1/exams/:id
// Returns an exam with its ordered questions.
func (h *ExamHandler) Detail(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	detail, err := h.examService.GetDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": detail})
}

// Statistics godoc
// GET /api/v1/exams/:id/statistics
// Aggregates all submissions of an exam.
func (h *ExamHandler) Statistics(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, stats, err := h.examService.Statistics(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_name":  exam.Name,
		"statistics": stats,
	})
}

// Create godoc
// POST /api/v1/admin/exams
// Creates a new exam.
func (h *ExamHandler) Create(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// AttachQuestion godoc
// POST /api/v1/admin/exams/:id/questions
// Links an existing question to an exam at a position number.
func (h *ExamHandler) AttachQuestion(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AttachQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.AttachQuestion(c.Request.Context(), id, &req); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrConflict):
			response.Fail(c, http.StatusConflict, response.ErrConflict)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"exam_id":     id,
		"question_id": req.QuestionID,
		"number":      req.Number,
	})
}
