package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/krau/autotone/adjust"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/preprocess"
	"github.com/krau/autotone/service"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errNoFile       = errors.New("no file uploaded")
	errTooLarge     = errors.New("uploaded file is too large")
)

func authenticate(c *gin.Context, expectedToken string) error {
	if expectedToken == "" {
		return nil
	}
	auth := c.GetHeader("Authorization")
	providedToken := ""
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		providedToken = strings.TrimSpace(auth[7:])
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}
	return nil
}

// statusFor maps an error onto the HTTP status returned to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	switch service.Classify(err) {
	case service.KindPrecondition, service.KindBusy:
		return http.StatusConflict
	case service.KindImageNotReady, service.KindBadImage:
		return http.StatusBadRequest
	case service.KindModelNotReady, service.KindModelLoad:
		return http.StatusServiceUnavailable
	case service.KindUnknownLabel:
		return http.StatusUnprocessableEntity
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, errUnauthorized):
		return "Authentication failed."
	case errors.Is(err, errNoFile):
		return "No file uploaded."
	case errors.Is(err, errTooLarge):
		return "The uploaded file is too large."
	}
	return service.Message(err)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": messageFor(err), "code": status})
}

func (s *Server) requireToken(c *gin.Context) {
	if err := authenticate(c, s.token); err != nil {
		s.writeError(c, err)
		return
	}
	c.Next()
}

// AnalyzeHandler decodes the uploaded image and returns the recommendation.
func (s *Server) AnalyzeHandler(c *gin.Context) {
	if s.maxUpload > 0 {
		// multipart framing gets a little headroom on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+64<<10)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(c, errTooLarge)
			return
		}
		s.writeError(c, errNoFile)
		return
	}
	if s.maxUpload > 0 && fileHeader.Size > s.maxUpload {
		s.writeError(c, errTooLarge)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		s.writeError(c, &preprocess.DecodeError{Err: err})
		return
	}
	defer file.Close()

	img, format, err := preprocess.Decode(file)
	if err != nil {
		s.writeError(c, err)
		return
	}

	sessionID := c.PostForm("session")
	if sessionID == "" {
		sessionID = c.GetHeader("X-Session-ID")
	}
	res, err := s.rec.Analyze(c.Request.Context(), sessionID, img, format)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) AdjustHandler(c *gin.Context) {
	adj, err := s.rec.Adjust(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, adj)
}

func (s *Server) SessionHandler(c *gin.Context) {
	sess, err := s.rec.Session(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// ImageHandler renders the session's image with its current adjustment as PNG.
func (s *Server) ImageHandler(c *gin.Context) {
	img, err := s.rec.Render(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := imaging.Encode(c.Writer, img, imaging.PNG); err != nil {
		s.logger.Error().Err(err).Msg("encode image")
	}
}

type adjustmentView struct {
	adjust.Spec
	CSS string `json:"css"`
}

func (s *Server) AdjustmentsHandler(c *gin.Context) {
	all := adjust.All()
	out := make([]adjustmentView, 0, len(all))
	for _, spec := range all {
		out = append(out, adjustmentView{Spec: spec, CSS: spec.CSS()})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ReadyHandler answers 200 once the model is loaded and 503 otherwise.
func (s *Server) ReadyHandler(c *gin.Context) {
	state := s.rec.ModelState()
	if s.rec.Ready() {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "model": state})
		return
	}
	msg := "The model is not loaded yet."
	if state == model.StateLoadFailed {
		msg = "The model failed to load."
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "model": state, "error": msg})
}
