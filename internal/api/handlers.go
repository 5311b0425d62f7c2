package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"notez-go/internal/aggregator"
	"notez-go/internal/intake"
	"notez-go/internal/logger"
	"notez-go/internal/types"
)

const uploadField = "file"

type Acceptor interface {
	Accept(ctx context.Context, up intake.Upload) (*types.Job, error)
}

type Runner interface {
	Run(ctx context.Context, job *types.Job) error
}

type Publisher interface {
	Publish(ctx context.Context, job *types.Job) (types.Result, error)
}

type Resolver interface {
	Resolve(name string) (string, error)
}

type StatsSource interface {
	Snapshot() aggregator.Insight
}

type Services struct {
	Intake    Acceptor
	Pipeline  Runner
	Publisher Publisher
	Artifacts Resolver
	Stats     StatsSource
}

type APIHandler struct {
	svc            Services
	maxUploadBytes int64
	log            *logger.Logger
}

func RegisterHandlers(r *gin.Engine, svc Services, maxUploadBytes int64, log *logger.Logger) {
	h := &APIHandler{svc: svc, maxUploadBytes: maxUploadBytes, log: log.WithComponent("api")}

	r.GET("/", h.index)
	r.GET("/healthz", h.health)
	r.GET("/stats", h.stats)
	r.POST("/upload", h.upload)
	r.GET("/uploads/:filename", h.serveArtifact)
}

func (h *APIHandler) index(c *gin.Context) {
	c.String(http.StatusOK, "Server is up and running!")
}

func (h *APIHandler) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *APIHandler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats.Snapshot())
}

// upload runs one file through intake, the pipeline and the publisher. The
// request context is the job context, so a client disconnect cancels the job.
func (h *APIHandler) upload(c *gin.Context) {
	ctx := c.Request.Context()
	reqLog := h.log.WithRequest(c.Request).WithField("handler", "upload")

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, reqLog, types.NewValidationError("File exceeds the %d byte upload limit", tooLarge.Limit))
			return
		}
		h.fail(c, reqLog, types.NewValidationError("No file uploaded"))
		return
	}
	defer form.RemoveAll()

	up, err := intake.FromForm(form, uploadField)
	if err != nil {
		h.fail(c, reqLog, err)
		return
	}
	defer up.Close()

	job, err := h.svc.Intake.Accept(ctx, up)
	if err != nil {
		h.fail(c, reqLog, err)
		return
	}
	reqLog = reqLog.WithField("job_id", job.ID)

	if err := h.svc.Pipeline.Run(ctx, job); err != nil {
		h.fail(c, reqLog, err)
		return
	}

	res, err := h.svc.Publisher.Publish(ctx, job)
	if err != nil {
		h.fail(c, reqLog, err)
		return
	}
	reqLog.WithField("duration_sec", res.DurationSec).Info("upload processed")
	c.JSON(http.StatusOK, res)
}

func (h *APIHandler) serveArtifact(c *gin.Context) {
	path, err := h.svc.Artifacts.Resolve(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "file not found"})
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "file not found"})
		return
	}
	c.File(path)
}

// fail answers with only an error field. Validation problems are the caller's
// fault; everything else is a server error.
func (h *APIHandler) fail(c *gin.Context, entry *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, types.ErrValidation) {
		status = http.StatusBadRequest
		entry.WithField("error", err.Error()).Warn("upload rejected")
	} else {
		entry.WithField("error", err.Error()).Error("upload failed")
	}
	c.JSON(status, types.ErrorResponse{Error: types.PublicMessage(err)})
}
