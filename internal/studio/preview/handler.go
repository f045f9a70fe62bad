package preview

import (
	"strings"

	"go.uber.org/zap"

	"github.com/cipherstudio/cipherstudio/internal/logging"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/studio/session"
)

// FilesData is the file map handed to the preview renderer.
type FilesData struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	// Entry is the key of the file the renderer starts from.
	Entry string `json:"entry,omitempty"`
	// Files maps "/<path>" to content.
	Files map[string]string `json:"files"`
}

// BuildFiles derives the preview file map from p. Paths always use "/"
// and start with it, whatever separator the tree uses.
func BuildFiles(p *project.Project) FilesData {
	sep := p.Tree.Separator()
	data := FilesData{
		ProjectID: p.ID,
		Name:      p.Name,
		Files:     make(map[string]string, p.Tree.Len()),
	}
	for path, content := range p.Tree.Files() {
		data.Files[previewKey(path, sep)] = content
	}
	if entry, ok := p.Entry(); ok {
		if path, err := p.Tree.PathOf(entry.ID); err == nil {
			data.Entry = previewKey(path, sep)
		}
	}
	return data
}

func previewKey(path, sep string) string {
	if sep != "/" {
		path = strings.ReplaceAll(path, sep, "/")
	}
	return "/" + path
}

// Handler feeds project values from a session to a Server.
type Handler struct {
	server *Server
	logger *zap.Logger
}

// NewHandler creates a Handler publishing to server.
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	return &Handler{
		server: server,
		logger: logging.OrNop(logger).Named("preview"),
	}
}

// Attach publishes the session's current project and every later one.
func (h *Handler) Attach(sess *session.Session) {
	h.OnProject(sess.Current())
	sess.Subscribe(h.OnProject)
}

// OnProject publishes p.
func (h *Handler) OnProject(p *project.Project) {
	data := BuildFiles(p)
	h.logger.Debug("publishing files",
		zap.String("project_id", p.ID),
		zap.Int("files", len(data.Files)),
		zap.String("entry", data.Entry))
	h.server.Publish(data)
}
