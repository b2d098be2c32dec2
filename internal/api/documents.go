package api

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dustin/go-humanize"

	"github.com/hashicorp-forge/quill/internal/server"
	"github.com/hashicorp-forge/quill/pkg/document"
	"github.com/hashicorp-forge/quill/pkg/models"
	"github.com/hashicorp-forge/quill/pkg/render"
	"github.com/hashicorp-forge/quill/pkg/storage"
)

// versionTimeFormat is the human-facing timestamp format used in
// version labels.
const versionTimeFormat = "2006-01-02 15:04:05"

type DocumentResponse struct {
	Key          string         `json:"key"`
	URL          string         `json:"url"`
	Version      int64          `json:"version"`
	VersionLabel string         `json:"version_label,omitempty"`
	VersionTime  string         `json:"version_time,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Files        []FileResponse `json:"files"`

	// CSS is the stylesheet for the formatted file markup, present only
	// when rendered output was requested.
	CSS string `json:"css,omitempty"`

	Token string `json:"token,omitempty"`
}

type FileResponse struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`

	// Formatted is the highlighted HTML for the file, present only when
	// the request asked for rendered output.
	Formatted string `json:"formatted,omitempty"`
}

type VersionResponse struct {
	Version      int64     `json:"version"`
	VersionLabel string    `json:"version_label,omitempty"`
	VersionTime  string    `json:"version_time,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateDocumentHandler stores a new document and returns it together
// with its root token.
func CreateDocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		files, err := parseFiles(w, r, srv.Config.Server.MaxDocumentSize)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		expiresAt, err := parseExpires(r)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		rev, rootToken, err := srv.Documents.Create(r.Context(), files, expiresAt)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		resp, err := documentResponse(srv, r, rev)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		resp.Token = rootToken
		respond(w, http.StatusCreated, resp)
	})
}

// GetDocumentHandler returns one revision of a document. Without a
// version path segment it returns the latest.
func GetDocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version, err := pathVersion(r)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		rev, err := srv.Documents.Read(r.Context(), r.PathValue("key"), version, bearerToken(r))
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		resp, err := documentResponse(srv, r, rev)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusOK, resp)
	})
}

// UpdateDocumentHandler appends a new revision to a document.
func UpdateDocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		files, err := parseFiles(w, r, srv.Config.Server.MaxDocumentSize)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		rev, err := srv.Documents.Update(r.Context(), r.PathValue("key"), bearerToken(r), files)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		resp, err := documentResponse(srv, r, rev)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusOK, resp)
	})
}

// DeleteDocumentHandler removes a document and all its versions.
func DeleteDocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := srv.Documents.Delete(r.Context(), r.PathValue("key"), bearerToken(r)); err != nil {
			respondError(srv, w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// ListVersionsHandler returns a document's version history, latest
// first.
func ListVersionsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		versions, err := srv.Documents.Versions(r.Context(), r.PathValue("key"), bearerToken(r))
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		resp := make([]VersionResponse, len(versions))
		for i, v := range versions {
			resp[i] = VersionResponse{
				Version:      v.Version,
				VersionLabel: versionLabel(v.Version, v.CreatedAt),
				VersionTime:  v.CreatedAt.Format(versionTimeFormat),
				CreatedAt:    v.CreatedAt,
			}
		}
		respond(w, http.StatusOK, resp)
	})
}

// GetDocumentFileHandler returns a single file of a revision.
func GetDocumentFileHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version, err := pathVersion(r)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		file, err := srv.Documents.ReadFile(r.Context(), r.PathValue("key"), version, r.PathValue("name"), bearerToken(r))
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		resp, err := fileResponse(srv, r, file)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusOK, resp)
	})
}

func documentResponse(srv server.Server, r *http.Request, rev *models.Revision) (*DocumentResponse, error) {
	files := make([]FileResponse, len(rev.Files))
	for i := range rev.Files {
		fr, err := fileResponse(srv, r, &rev.Files[i])
		if err != nil {
			return nil, err
		}
		files[i] = *fr
	}
	resp := &DocumentResponse{
		Key:          rev.DocumentKey,
		URL:          fmt.Sprintf("%s/documents/%s", srv.Config.Server.BaseURL, rev.DocumentKey),
		Version:      rev.Version,
		VersionLabel: versionLabel(rev.Version, rev.CreatedAt),
		VersionTime:  rev.CreatedAt.Format(versionTimeFormat),
		CreatedAt:    rev.CreatedAt,
		Files:        files,
	}
	if renderRequested(r) {
		css, err := srv.Renderer.CSS()
		if err != nil {
			return nil, fmt.Errorf("error rendering stylesheet: %w", err)
		}
		resp.CSS = css
	}
	return resp, nil
}

// versionLabel describes a revision in relative terms, marking the first
// revision as the original.
func versionLabel(version int64, createdAt time.Time) string {
	label := humanize.Time(createdAt)
	if version == 0 {
		label += " (original)"
	}
	return label
}

// renderRequested reports whether the request asked for highlighted HTML
// output. Both formatter=html and render=html are accepted.
func renderRequested(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("formatter") == "html" || q.Get("render") == "html"
}

func fileResponse(srv server.Server, r *http.Request, file *models.File) (*FileResponse, error) {
	language := file.Language
	if forced := r.URL.Query().Get("language"); forced != "" {
		language = render.DetectLanguage(forced, "", file.Name, file.Content)
	}

	resp := &FileResponse{
		Name:     file.Name,
		Content:  file.Content,
		Language: language,
	}
	if !renderRequested(r) {
		return resp, nil
	}

	rendered, err := srv.Renderer.Render(file.Content, language)
	if err != nil {
		return nil, fmt.Errorf("error rendering file %q: %w", file.Name, err)
	}
	resp.Formatted = rendered.HTML
	return resp, nil
}

// parseFiles reads the request body into file inputs. A multipart body
// carries one file per part; any other body is a single file described
// by the filename and language query parameters. The body is capped at
// maxSize bytes when the cap is set.
func parseFiles(w http.ResponseWriter, r *http.Request, maxSize int64) ([]storage.FileInput, error) {
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	}

	contentType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var files []storage.FileInput
	if strings.HasPrefix(contentType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: malformed multipart body", document.ErrInvalidInput)
			}

			data, err := io.ReadAll(part)
			if err != nil {
				return nil, err
			}

			name := part.FileName()
			if name == "" {
				name = part.FormName()
			}
			files = append(files, storage.FileInput{
				Name:    name,
				Content: string(data),
				Language: render.DetectLanguage(
					part.Header.Get("Language"),
					part.Header.Get("Content-Type"),
					name, string(data)),
			})
		}
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}

		name := r.URL.Query().Get("filename")
		if name == "" {
			name = "untitled"
		}
		language := r.URL.Query().Get("language")
		if language == "" {
			language = r.Header.Get("Language")
		}
		files = append(files, storage.FileInput{
			Name:    name,
			Content: string(data),
			Language: render.DetectLanguage(
				language,
				r.Header.Get("Content-Type"),
				name, string(data)),
		})
	}

	return files, validateFiles(files)
}

func validateFiles(files []storage.FileInput) error {
	if len(files) == 0 {
		return storage.ErrNoFiles
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f.Name == "" {
			return fmt.Errorf("%w: file name must not be empty", document.ErrInvalidInput)
		}
		if f.Content == "" {
			return fmt.Errorf("%w: file %q is empty", document.ErrInvalidInput, f.Name)
		}
		lower := strings.ToLower(f.Name)
		if seen[lower] {
			return fmt.Errorf("%w: duplicate file name %q", document.ErrInvalidInput, f.Name)
		}
		seen[lower] = true
	}
	return nil
}

// parseExpires reads the document expiry from the expires query
// parameter or the Expires header. The timestamp must lie in the future.
func parseExpires(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("expires")
	if raw == "" {
		raw = r.Header.Get("Expires")
	}
	if raw == "" {
		return nil, nil
	}

	expiresAt, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable expiry %q", document.ErrInvalidInput, raw)
	}
	if !expiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", document.ErrInvalidInput)
	}
	return &expiresAt, nil
}
