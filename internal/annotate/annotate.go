// Package annotate turns a camera's video into a free-text description of
// what happens in it, using a hosted multimodal model.
package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/invision-ai/invision/internal/logging"
	"github.com/invision-ai/invision/internal/metadata"
	"github.com/invision-ai/invision/internal/models"
	"github.com/invision-ai/invision/internal/video"
)

// BuildPrompt returns the annotation instruction for a video of room.
func BuildPrompt(room string) string {
	return fmt.Sprintf("This is the CCTV footage of room: `%s`. Mention the room in your output\n"+
		"Describe in every single details the events that happened in this CCTV footage. "+
		"Make the greatest level of details on everything moving or that changes (ignore what doesn't change). "+
		"List what every person or individual is doing and what happens, using bullet points.", room)
}

// Annotator describes camera footage.
type Annotator struct {
	store  metadata.Store
	loader video.Loader
	model  models.VideoModel
	logger *slog.Logger
}

func NewAnnotator(store metadata.Store, loader video.Loader, model models.VideoModel, logger *slog.Logger) *Annotator {
	if loader == nil {
		loader = video.FileLoader{}
	}
	return &Annotator{
		store:  store,
		loader: loader,
		model:  model,
		logger: logging.WithComponent(logging.OrDiscard(logger), "annotate"),
	}
}

// Annotate resolves the camera's room, loads the video at videoPath and
// returns the model's description of it. A missing video yields a
// *video.NotFoundError before any model call.
func (a *Annotator) Annotate(ctx context.Context, cameraID, videoPath string) (string, error) {
	logger := logging.WithCameraID(a.logger, cameraID)

	room, err := a.store.RoomName(ctx, cameraID)
	if err != nil {
		return "", err
	}

	v, err := a.loader.Load(ctx, videoPath)
	if err != nil {
		return "", err
	}

	logger.Info("annotating video",
		"room", room,
		"path", logging.SanitizePath(videoPath),
		"size", humanize.Bytes(uint64(len(v.Data))),
		"mime_type", v.MIMEType,
	)

	start := time.Now()
	result, err := a.model.GenerateFromVideo(ctx, BuildPrompt(room), models.Media{Data: v.Data, MIMEType: v.MIMEType})
	if err != nil {
		return "", fmt.Errorf("annotate %s: %w", videoPath, err)
	}

	text, err := result.FirstText()
	if err != nil {
		return "", fmt.Errorf("annotate %s: %w", videoPath, err)
	}

	logger.Info("annotation complete",
		"chars", len(text),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return text, nil
}
