// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"io"

	"github.com/wingedpig/parley/internal/session"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports sessions in YAML format.
type YAMLExporter struct{}

// Export writes sess as YAML.
func (e *YAMLExporter) Export(sess session.Session, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(NewTranscript(sess))
}

// ExportAll writes sessions as a YAML sequence.
func (e *YAMLExporter) ExportAll(sessions []session.Session, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(newTranscripts(sessions))
}

// Extension returns the file extension for this format.
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
