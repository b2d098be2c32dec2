package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/quill/internal/config"
	"github.com/hashicorp-forge/quill/pkg/document"
	"github.com/hashicorp-forge/quill/pkg/render"
)

// Server bundles everything the HTTP handlers need.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// DB is the database for the server.
	DB *gorm.DB

	// Documents is the document application service.
	Documents *document.Service

	// Renderer produces highlighted output for document files.
	Renderer render.Renderer

	// Logger is the logger for the server.
	Logger hclog.Logger
}
