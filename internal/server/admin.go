package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xaenox/advising-bot/internal/advisor"
	"github.com/xaenox/advising-bot/internal/models"
	"github.com/xaenox/advising-bot/internal/storage"
	"go.uber.org/zap"
)

const maxGPA = 4.0

func (s *Server) renderError(c *gin.Context, status int, message string) {
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.HTML(status, "error.html", gin.H{"Error": message})
}

func (s *Server) listFAQs(c *gin.Context) {
	faqs, err := s.store.ListFAQ(c.Request.Context())
	if err != nil {
		requestLogger(c).Error("Failed to list FAQs", zap.Error(err))
		captureError(c, err)
		s.renderError(c, http.StatusInternalServerError, "Error connecting to database")
		return
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(http.StatusOK, faqs)
		return
	}

	nextID := 1
	for _, f := range faqs {
		nextID = max(nextID, f.QuestionID+1)
	}

	c.HTML(http.StatusOK, "faqs.html", gin.H{
		"FAQs":      faqs,
		"NextID":    nextID,
		"Suggested": make([]struct{}, advisor.MaxSuggestedQuestions),
	})
}

// editFAQs applies one form action (update, add or delete) and redirects
// back to the list.
func (s *Server) editFAQs(c *gin.Context) {
	ctx := c.Request.Context()
	log := requestLogger(c)

	var err error
	switch action := c.PostForm("action"); action {
	case "update":
		err = s.updateFAQ(c)
	case "add":
		question := strings.TrimSpace(c.PostForm("question"))
		if question == "" {
			s.renderError(c, http.StatusBadRequest, "Question is required")
			return
		}
		entry := &models.FAQEntry{
			Question:           question,
			Answer:             strings.TrimSpace(c.PostForm("answer")),
			SuggestedQuestions: formList(c, "new_suggested_question_"),
		}
		err = s.store.AddFAQ(ctx, entry)
		if err == nil {
			log.Info("FAQ added", zap.Int("question_id", entry.QuestionID))
		}
	case "delete":
		err = s.store.DeleteFAQ(ctx, c.PostForm("doc_id"))
	default:
		s.renderError(c, http.StatusBadRequest, fmt.Sprintf("Unknown action %q", action))
		return
	}

	var badRequest *badRequestError
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, "/faqs")
	case errors.As(err, &badRequest):
		s.renderError(c, http.StatusBadRequest, badRequest.msg)
	case errors.Is(err, storage.ErrNotFound):
		s.renderError(c, http.StatusNotFound, "FAQ entry not found")
	default:
		log.Error("Failed to edit FAQs", zap.Error(err))
		captureError(c, err)
		s.renderError(c, http.StatusInternalServerError, "Error connecting to database")
	}
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func (s *Server) updateFAQ(c *gin.Context) error {
	ctx := c.Request.Context()

	docID := c.PostForm("doc_id")
	if docID == "" {
		return &badRequestError{msg: "doc_id is required"}
	}

	entry := &models.FAQEntry{
		DocID:              docID,
		Question:           strings.TrimSpace(c.PostForm("question")),
		Answer:             strings.TrimSpace(c.PostForm("answer")),
		SuggestedQuestions: formList(c, "suggested_question_"),
	}

	if raw := strings.TrimSpace(c.PostForm("question_id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return &badRequestError{msg: "Question ID must be an integer"}
		}
		entry.QuestionID = id
	} else {
		current, err := s.findFAQ(ctx, docID)
		if err != nil {
			return err
		}
		entry.QuestionID = current.QuestionID
	}

	return s.store.UpdateFAQ(ctx, entry)
}

func (s *Server) findFAQ(ctx context.Context, docID string) (*models.FAQEntry, error) {
	faqs, err := s.store.ListFAQ(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range faqs {
		if f.DocID == docID {
			return f, nil
		}
	}
	return nil, storage.ErrNotFound
}

// formList collects prefix0, prefix1, ... up to the first missing field,
// skipping blanks.
func formList(c *gin.Context, prefix string) []string {
	var out []string
	for i := 0; len(out) < advisor.MaxSuggestedQuestions; i++ {
		v, ok := c.GetPostForm(prefix + strconv.Itoa(i))
		if !ok {
			break
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Server) showStudent(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		s.renderError(c, http.StatusBadRequest, "Missing student id")
		return
	}

	profile, err := s.store.GetUser(c.Request.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		profile = &models.UserProfile{UserID: id}
	case err != nil:
		requestLogger(c).Error("Failed to load student", zap.Error(err), zap.String("user_id", id))
		captureError(c, err)
		s.renderError(c, http.StatusInternalServerError, "Error connecting to database")
		return
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusOK, profile)
		return
	}

	domestic := ""
	if d := profile.Transcript.Domestic; d != nil {
		domestic = strconv.FormatBool(*d)
	}
	c.HTML(http.StatusOK, "student_info.html", gin.H{
		"Profile":  profile,
		"Domestic": domestic,
		"Saved":    c.Query("saved") == "1",
	})
}

type studentInfoRequest struct {
	ID         string            `json:"id"`
	Transcript models.Transcript `json:"transcript"`
}

// updateStudent accepts either a JSON transcript or the HTML form fields
func (s *Server) updateStudent(c *gin.Context) {
	ctx := c.Request.Context()
	isJSON := c.ContentType() == gin.MIMEJSON

	var (
		id         string
		transcript models.Transcript
	)
	if isJSON {
		var req studentInfoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		id, transcript = req.ID, req.Transcript
		if id == "" {
			id = c.Query("id")
		}
	} else {
		id = c.PostForm("id")
		var err error
		transcript, err = s.transcriptFromForm(ctx, c, id)
		if err != nil {
			var badRequest *badRequestError
			if errors.As(err, &badRequest) {
				s.renderError(c, http.StatusBadRequest, badRequest.msg)
				return
			}
			captureError(c, err)
			s.renderError(c, http.StatusInternalServerError, "Error connecting to database")
			return
		}
	}

	if id == "" {
		s.renderError(c, http.StatusBadRequest, "Missing student id")
		return
	}
	if err := validateTranscript(transcript); err != nil {
		s.renderError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.saveTranscript(ctx, id, transcript); err != nil {
		requestLogger(c).Error("Failed to save transcript", zap.Error(err), zap.String("user_id", id))
		captureError(c, err)
		s.renderError(c, http.StatusInternalServerError, "Error connecting to database")
		return
	}
	requestLogger(c).Info("Student info updated", zap.String("user_id", id))

	if isJSON {
		c.JSON(http.StatusOK, gin.H{"status": "updated", "id": id})
		return
	}
	c.Redirect(http.StatusSeeOther, "/student-info?"+url.Values{"id": {id}, "saved": {"1"}}.Encode())
}

// transcriptFromForm overlays the form fields on the stored transcript so
// courses submitted earlier as JSON are kept.
func (s *Server) transcriptFromForm(ctx context.Context, c *gin.Context, id string) (models.Transcript, error) {
	var transcript models.Transcript
	if id != "" {
		profile, err := s.store.GetUser(ctx, id)
		switch {
		case err == nil:
			transcript = profile.Transcript
		case !errors.Is(err, storage.ErrNotFound):
			return transcript, err
		}
	}

	transcript.Program = strings.TrimSpace(c.PostForm("program"))

	var err error
	if transcript.GPA, err = formFloat(c, "gpa"); err != nil {
		return transcript, &badRequestError{msg: "GPA must be a number"}
	}
	if transcript.CreditsEarned, err = formFloat(c, "credits_earned"); err != nil {
		return transcript, &badRequestError{msg: "Credits earned must be a number"}
	}

	switch c.PostForm("domestic") {
	case "true":
		d := true
		transcript.Domestic = &d
	case "false":
		d := false
		transcript.Domestic = &d
	default:
		transcript.Domestic = nil
	}
	return transcript, nil
}

func formFloat(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func validateTranscript(t models.Transcript) error {
	if t.GPA < 0 || t.GPA > maxGPA {
		return fmt.Errorf("GPA must be between 0 and %.1f", maxGPA)
	}
	if t.CreditsEarned < 0 {
		return errors.New("credits earned must not be negative")
	}
	for _, course := range t.CompletedCourses {
		if strings.TrimSpace(course.CourseID) == "" {
			return errors.New("every completed course needs a course_id")
		}
	}
	return nil
}

func (s *Server) saveTranscript(ctx context.Context, id string, transcript models.Transcript) error {
	err := s.store.UpdateUser(ctx, id, models.UserPatch{Transcript: &transcript})
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	// Students may share details before their first chat message
	err = s.store.CreateUser(ctx, &models.UserProfile{UserID: id, Transcript: transcript})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return s.store.UpdateUser(ctx, id, models.UserPatch{Transcript: &transcript})
	}
	return err
}
