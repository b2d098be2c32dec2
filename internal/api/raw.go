package api

import (
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/hashicorp-forge/quill/internal/server"
)

// RawDocumentHandler serves document content without any JSON framing.
// A single-file document is written as plain text; a multi-file document
// is written as a multipart body with one part per file.
func RawDocumentHandler(srv server.Server) http.Handler {
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

		if len(rev.Files) == 1 {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(rev.Files[0].Content))
			return
		}

		mpw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", mpw.FormDataContentType())
		for i, file := range rev.Files {
			headers := make(textproto.MIMEHeader, 3)
			headers.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
				"name":     fmt.Sprintf("file-%d", i),
				"filename": file.Name,
			}))
			headers.Set("Content-Type", "text/plain; charset=utf-8")
			headers.Set("Language", file.Language)

			part, err := mpw.CreatePart(headers)
			if err != nil {
				srv.Logger.Error("error writing raw part", "key", rev.DocumentKey, "file", file.Name, "error", err)
				return
			}
			if _, err := part.Write([]byte(file.Content)); err != nil {
				srv.Logger.Error("error writing raw part", "key", rev.DocumentKey, "file", file.Name, "error", err)
				return
			}
		}
		_ = mpw.Close()
	})
}

// RawFileHandler serves one file's content as plain text.
func RawFileHandler(srv server.Server) http.Handler {
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

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Language", file.Language)
		_, _ = w.Write([]byte(file.Content))
	})
}
