package httpserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interviewer/internal/config"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

type fixedExtractor struct {
	text string
	got  []byte
}

func (f *fixedExtractor) Extract(_ domain.Context, _ string, data []byte) (string, error) {
	f.got = data
	return f.text, nil
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func multipartBody(t *testing.T, field, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func resumeServer(x domain.TextExtractor) *Server {
	return &Server{
		Cfg:     config.Config{AppEnv: "test", MaxUploadMB: 1},
		Resumes: usecase.NewResumeService(x),
	}
}

func TestParseResumeHandler_PDF(t *testing.T) {
	x := &fixedExtractor{text: "Grace Hopper\ngrace@navy.mil\n(555) 123-4567\nExperience"}
	body, ct := multipartBody(t, "resume", "cv.pdf", samplePDF)
	req := httptest.NewRequest(http.MethodPost, "/api/resumes/parse", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	resumeServer(x).ParseResumeHandler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, samplePDF, x.got)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pdf", out["fileType"])
	assert.Equal(t, "Grace Hopper", out["extracted"].(map[string]any)["name"])
	assert.Equal(t, []any{}, out["missingFields"])
}

func TestParseResumeHandler_Rejects(t *testing.T) {
	srv := resumeServer(&fixedExtractor{text: "x"})

	t.Run("plain text disguised as pdf", func(t *testing.T) {
		body, ct := multipartBody(t, "resume", "cv.pdf", []byte("just some text"))
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		srv.ParseResumeHandler()(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("pdf with txt extension", func(t *testing.T) {
		body, ct := multipartBody(t, "resume", "cv.txt", samplePDF)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		srv.ParseResumeHandler()(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("wrong field", func(t *testing.T) {
		body, ct := multipartBody(t, "cv", "cv.pdf", samplePDF)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		srv.ParseResumeHandler()(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{}")))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ParseResumeHandler()(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := append(append([]byte{}, samplePDF...), bytes.Repeat([]byte("A"), 1536*1024)...)
		body, ct := multipartBody(t, "resume", "cv.pdf", big)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		srv.ParseResumeHandler()(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestResumeFileType(t *testing.T) {
	ft, ok := resumeFileType("CV.PDF", samplePDF)
	assert.True(t, ok)
	assert.Equal(t, "pdf", ft)

	_, ok = resumeFileType("cv.docx", samplePDF)
	assert.False(t, ok)

	_, ok = resumeFileType("cv", samplePDF)
	assert.False(t, ok)
}
