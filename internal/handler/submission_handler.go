package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medway/exam-backend/internal/model"
	"github.com/medway/exam-backend/internal/response"
	"github.com/medway/exam-backend/internal/service"
	"github.com/medway/exam-backend/internal/taskqueue"
	"github.com/medway/exam-backend/internal/validator"
)

// SubmissionHandler handles the submission pipeline endpoints: ingress,
// status polling, and result retrieval.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// Submit godoc
// POST /api/v1/submissions
// Validates the payload and enqueues a submission-creation task. The
// submission row is created by the background worker; clients poll the
// status endpoint with the returned task id.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	taskID, fieldErrs, err := h.submissionService.Submit(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if fieldErrs != nil {
		code := response.ErrValidation
		if fieldErrs["non_field_errors"] == service.MsgDuplicateSubmission {
			code = response.ErrDuplicateSubmission
		}
		response.FailWithFields(c, http.StatusBadRequest, code, fieldErrs)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"task_id":       taskID,
		"poll_url_hint": "/api/v1/submissions/status?task_id=" + taskID,
	})
}

// Status godoc
// GET /api/v1/submissions/status?task_id=...
// Reports a task's state: 200 on SUCCEEDED with the result payload,
// 500 on FAILED with the error description, 202 otherwise. Unknown
// task ids report QUEUED — the poller should simply try again later.
func (h *SubmissionHandler) Status(c *gin.Context) {
	taskID := c.Query("task_id")
	if taskID == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"task_id": "This query parameter is required"})
		return
	}

	rec, err := h.submissionService.Status(c.Request.Context(), taskID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	switch rec.State {
	case taskqueue.StateSucceeded:
		task := gin.H{"state": rec.State}
		if rec.Result != nil {
			task["created"] = rec.Result.Created
			task["submission"] = rec.Result.Submission
		}
		response.Success(c, http.StatusOK, gin.H{"task": task})
	case taskqueue.StateFailed:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"code":    response.ErrTaskFailed,
			"task":    gin.H{"state": rec.State, "error": rec.Error},
		})
	default:
		response.Success(c, http.StatusAccepted, gin.H{"task": gin.H{"state": rec.State}})
	}
}

// GetResult godoc
// GET /api/v1/submissions/:id
// Returns the full graded result for a submission.
func (h *SubmissionHandler) GetResult(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.submissionService.GetResult(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": result})
}

// GetStudentExamResult godoc
// GET /api/v1/students/:student_id/exams/:exam_id/results
// Returns the graded result for a (student, exam) pair.
func (h *SubmissionHandler) GetStudentExamResult(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	examID, err := strconv.Atoi(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.submissionService.GetResultByPair(c.Request.Context(), studentID, examID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": result})
}

// List godoc
// GET /api/v1/submissions
// Lists submissions with optional filters and pagination.
func (h *SubmissionHandler) List(c *gin.Context) {
	filter := model.SubmissionFilter{
		StudentID:     intQuery(c, "student_id"),
		ExamID:        intQuery(c, "exam_id"),
		StudentName:   c.Query("student_name"),
		ExamName:      c.Query("exam_name"),
		MinScore:      floatQuery(c, "min_score"),
		MaxScore:      floatQuery(c, "max_score"),
		SubmittedFrom: timeQuery(c, "submitted_after"),
		SubmittedTo:   timeQuery(c, "submitted_before"),
	}
	page, perPage := pagination(c)

	items, total, err := h.submissionService.List(c.Request.Context(), filter, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if items == nil {
		items = []model.SubmissionListItem{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"count":   total,
		"results": items,
	})
}

// ListByStudent godoc
// GET /api/v1/students/:student_id/submissions
// Lists all submissions of one student.
func (h *SubmissionHandler) ListByStudent(c *gin.Context) {
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	page, perPage := pagination(c)

	items, total, err := h.submissionService.ListByStudent(c.Request.Context(), studentID, page, perPage)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if items == nil {
		items = []model.SubmissionListItem{}
	}
	response.Success(c, http.StatusOK, gin.H{
		"student_id":        studentID,
		"total_submissions": total,
		"submissions":       items,
	})
}

// Analysis godoc
// GET /api/v1/submissions/:id/analysis
// Compares a submission's score against the rest of its exam.
func (h *SubmissionHandler) Analysis(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	analysis, err := h.submissionService.Analysis(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"submission": gin.H{"id": id},
		"comparison": analysis,
	})
}
