package cmd

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/session"
	"github.com/xkilldash9x/wdatoms/internal/config"
	"github.com/xkilldash9x/wdatoms/internal/observability"
)

// documentFlags selects the document a one-shot session starts on.
type documentFlags struct {
	url     string
	file    string
	baseURL string
}

func (d *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.url, "url", "", "fetch and load this address first")
	cmd.Flags().StringVar(&d.file, "file", "", "load this HTML file first")
	cmd.Flags().StringVar(&d.baseURL, "base-url", "", "address to report for --file (default file://<path>)")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
}

// openSession creates the components and one session, and loads the
// requested document. The returned func releases everything.
func openSession(ctx context.Context, docs documentFlags) (*session.Session, *config.Config, func(), error) {
	cfg, err := getConfig(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := observability.GetLogger()

	components, err := newComponentFactory().Create(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	release := func() {
		if err := components.Shutdown(context.Background()); err != nil {
			logger.Warn("Shutdown finished with errors.", zap.Error(err))
		}
	}

	s, err := components.Sessions.Create()
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	if err := loadDocument(ctx, s, docs); err != nil {
		release()
		return nil, nil, nil, err
	}
	return s, cfg, release, nil
}

func loadDocument(ctx context.Context, s *session.Session, docs documentFlags) error {
	switch {
	case docs.url != "":
		return s.Navigate(ctx, docs.url)
	case docs.file != "":
		f, err := os.Open(docs.file)
		if err != nil {
			return fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		address := docs.baseURL
		if address == "" {
			abs, err := filepath.Abs(docs.file)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", docs.file, err)
			}
			address = "file://" + filepath.ToSlash(abs)
		}
		return s.Load(f, address)
	}
	return nil
}

// writeEnvelope prints v in the configured envelope format followed by a
// newline.
func writeEnvelope(w io.Writer, format string, v interface{}) error {
	data, err := schemas.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if format == config.EnvelopeStructured {
		var indented bytes.Buffer
		if err := stdjson.Indent(&indented, data, "", "  "); err != nil {
			return fmt.Errorf("failed to indent envelope: %w", err)
		}
		data = indented.Bytes()
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
