package annotate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invision-ai/invision/internal/metadata"
	"github.com/invision-ai/invision/internal/models"
	"github.com/invision-ai/invision/internal/video"
)

type fakeVideoModel struct {
	calls  int
	prompt string
	media  models.Media
	result *models.GenerationResult
	err    error
}

func (m *fakeVideoModel) GenerateFromVideo(_ context.Context, prompt string, media models.Media) (*models.GenerationResult, error) {
	m.calls++
	m.prompt = prompt
	m.media = media
	return m.result, m.err
}

func textResult(text string) *models.GenerationResult {
	return &models.GenerationResult{Candidates: []models.Candidate{{Segments: []models.Segment{{Text: text}}}}}
}

func writeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake video bytes"), 0o644))
	return path
}

func newStore() metadata.Store {
	return metadata.NewStaticStore(metadata.DefaultCatalog(), metadata.Fail())
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	p := BuildPrompt("main lobby")
	require.Contains(t, p, "`main lobby`")
	require.Contains(t, p, "bullet points")
	require.Contains(t, p, "everything moving or that changes")
}

func TestAnnotate(t *testing.T) {
	t.Parallel()

	model := &fakeVideoModel{result: textResult("- a person enters the backyard")}
	a := NewAnnotator(newStore(), nil, model, nil)
	path := writeVideo(t, "clip.mov")

	text, err := a.Annotate(context.Background(), "camera1", path)
	require.NoError(t, err)
	require.Equal(t, "- a person enters the backyard", text)

	require.Equal(t, 1, model.calls)
	require.Equal(t, BuildPrompt("backyard"), model.prompt)
	require.Equal(t, []byte("fake video bytes"), model.media.Data)
	require.Equal(t, "video/quicktime", model.media.MIMEType)
}

func TestAnnotate_MissingVideo(t *testing.T) {
	t.Parallel()

	model := &fakeVideoModel{result: textResult("unused")}
	a := NewAnnotator(newStore(), nil, model, nil)
	path := filepath.Join(t.TempDir(), "missing.mp4")

	_, err := a.Annotate(context.Background(), "camera1", path)
	require.Error(t, err)
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.Contains(t, err.Error(), path)

	var nf *video.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Zero(t, model.calls)
}

func TestAnnotate_UnknownCamera(t *testing.T) {
	t.Parallel()

	model := &fakeVideoModel{result: textResult("unused")}
	a := NewAnnotator(newStore(), nil, model, nil)

	_, err := a.Annotate(context.Background(), "camera9", writeVideo(t, "clip.mp4"))
	require.ErrorIs(t, err, metadata.ErrNotFound)
	require.Zero(t, model.calls)
}

func TestAnnotate_DefaultRoom(t *testing.T) {
	t.Parallel()

	model := &fakeVideoModel{result: textResult("ok")}
	store := metadata.NewStaticStore(metadata.DefaultCatalog(), metadata.DefaultTo(metadata.DefaultStubRoom))
	a := NewAnnotator(store, nil, model, nil)

	_, err := a.Annotate(context.Background(), "camera9", writeVideo(t, "clip.mp4"))
	require.NoError(t, err)
	require.Equal(t, BuildPrompt("shop front"), model.prompt)
}

func TestAnnotate_EmptyResult(t *testing.T) {
	t.Parallel()

	model := &fakeVideoModel{result: &models.GenerationResult{}}
	a := NewAnnotator(newStore(), nil, model, nil)

	_, err := a.Annotate(context.Background(), "camera2", writeVideo(t, "clip.mp4"))
	require.ErrorIs(t, err, models.ErrEmptyResult)
}
