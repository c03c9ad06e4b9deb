package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/domain"
)

// Loader dispatches a source specifier to the web, PDF or text loader.
// URLs go to the web loader; anything else is treated as a path, glob or
// directory on the local filesystem.
type Loader struct {
	web    *WebLoader
	pdf    *PDFLoader
	text   *TextLoader
	logger *zap.Logger
}

// Options configures New.
type Options struct {
	Web    WebOptions
	Logger *zap.Logger
}

func New(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		web:    NewWebLoader(opts.Web),
		pdf:    &PDFLoader{},
		text:   &TextLoader{},
		logger: logger,
	}
}

// IsURL reports whether source is an http(s) URL.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load returns the documents of source. It fails with ErrIngest when the
// source is unreachable, unparsable or holds no text.
func (l *Loader) Load(ctx context.Context, source string) ([]domain.Document, error) {
	if IsURL(source) {
		return l.web.Load(ctx, source)
	}
	files, err := expand(source)
	if err != nil {
		return nil, err
	}
	var docs []domain.Document
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, domain.Classify(domain.ErrIngest, "loader", err)
		}
		var loaded []domain.Document
		if strings.EqualFold(filepath.Ext(f), ".pdf") {
			loaded, err = l.pdf.Load(ctx, f)
		} else {
			loaded, err = l.text.Load(ctx, f)
		}
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded file", zap.String("path", f), zap.Int("documents", len(loaded)))
		docs = append(docs, loaded...)
	}
	return docs, nil
}

var supportedExt = map[string]bool{".pdf": true, ".txt": true, ".md": true, ".markdown": true}

// expand resolves a glob or directory into files. A plain path is returned as is.
// Globs and directories only yield supported extensions; directories are not
// walked recursively.
func expand(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err == nil && info.IsDir() {
		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, domain.Wrap(domain.ErrIngest, "loader", err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && supportedExt[strings.ToLower(filepath.Ext(e.Name()))] {
				files = append(files, filepath.Join(source, e.Name()))
			}
		}
		if len(files) == 0 {
			return nil, domain.Errorf(domain.ErrIngest, "loader", "no supported files in %s", source)
		}
		return files, nil
	}
	if err == nil {
		return []string{source}, nil
	}

	matches, globErr := filepath.Glob(source)
	if globErr != nil {
		return nil, domain.Wrap(domain.ErrIngest, "loader", fmt.Errorf("bad pattern %q: %w", source, globErr))
	}
	var files []string
	for _, m := range matches {
		if supportedExt[strings.ToLower(filepath.Ext(m))] {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, domain.Wrap(domain.ErrIngest, "loader", fmt.Errorf("%s: %w", source, os.ErrNotExist))
	}
	sort.Strings(files)
	return files, nil
}

// TextLoader reads a whole file as one document.
type TextLoader struct{}

func (TextLoader) Load(_ context.Context, path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrIngest, "loader.text", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, domain.Errorf(domain.ErrIngest, "loader.text", "%s is empty", path)
	}
	return []domain.Document{{
		Text:     text,
		SourceID: path,
		Metadata: map[string]any{"file_name": filepath.Base(path)},
	}}, nil
}
