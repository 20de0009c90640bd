// Package repository is the on-disk document repository: a
// types.json catalog of DocumentTypes, and one docs/<doc_id>/index.json
// + stored file per Document (spec §3, §6).
package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cometlocal/cometlocal/internal/atomicfile"
	"github.com/cometlocal/cometlocal/internal/model"
)

// Repository is a read-mostly on-disk store rooted at root (spec §6:
// "The repository store is read-mostly; writes are serialized through
// atomic file-replace").
type Repository struct {
	root string
}

// Open returns a Repository rooted at root, creating the directory
// layout (types/, docs/) if absent.
func Open(root string) (*Repository, error) {
	for _, dir := range []string{filepath.Join(root, "types"), filepath.Join(root, "docs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create %s: %w", dir, err)
		}
	}
	return &Repository{root: root}, nil
}

func (r *Repository) typesFile() string {
	return filepath.Join(r.root, "types", "types.json")
}

func (r *Repository) docDir(docID string) string {
	return filepath.Join(r.root, "docs", docID)
}

func (r *Repository) docIndexFile(docID string) string {
	return filepath.Join(r.docDir(docID), "index.json")
}

// ListTypes reads the full DocumentType catalog. A missing types.json
// is treated as an empty catalog, not an error — a fresh repository
// has none yet.
func (r *Repository) ListTypes() ([]model.DocumentType, error) {
	data, err := os.ReadFile(r.typesFile())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: read types.json: %w", err)
	}
	var types []model.DocumentType
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("repository: parse types.json: %w", err)
	}
	return types, nil
}

// PutTypes replaces the whole DocumentType catalog atomically.
func (r *Repository) PutTypes(types []model.DocumentType) error {
	sorted := append([]model.DocumentType(nil), types...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TypeID < sorted[j].TypeID })

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: marshal types.json: %w", err)
	}
	if err := atomicfile.Write(r.typesFile(), data, 0o644); err != nil {
		return fmt.Errorf("repository: write types.json: %w", err)
	}
	return nil
}

// GetDocument reads one document's index.json.
func (r *Repository) GetDocument(docID string) (model.Document, error) {
	data, err := os.ReadFile(r.docIndexFile(docID))
	if err != nil {
		return model.Document{}, fmt.Errorf("repository: read document %s: %w", docID, err)
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Document{}, fmt.Errorf("repository: parse document %s: %w", docID, err)
	}
	return doc, nil
}

// PutDocument atomically writes doc's index.json, creating its
// directory if needed.
func (r *Repository) PutDocument(doc model.Document) error {
	if doc.DocID == "" {
		return fmt.Errorf("repository: document must have a doc_id")
	}
	if err := os.MkdirAll(r.docDir(doc.DocID), 0o755); err != nil {
		return fmt.Errorf("repository: create doc dir for %s: %w", doc.DocID, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: marshal document %s: %w", doc.DocID, err)
	}
	if err := atomicfile.Write(r.docIndexFile(doc.DocID), data, 0o644); err != nil {
		return fmt.Errorf("repository: write document %s: %w", doc.DocID, err)
	}
	return nil
}

// StoredFilePath returns where doc's uploaded file itself is kept,
// alongside its index.json.
func (r *Repository) StoredFilePath(docID, fileName string) string {
	return filepath.Join(r.docDir(docID), fileName)
}

// ListDocuments reads every document under docs/. Directories whose
// index.json is missing or unparseable are skipped rather than
// failing the whole listing, so one corrupt entry cannot block
// matching against the rest of the repository.
func (r *Repository) ListDocuments() ([]model.Document, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "docs"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: list docs dir: %w", err)
	}

	var docs []model.Document
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		doc, err := r.GetDocument(e.Name())
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs, nil
}

// ContainsPath reports whether candidatePath lies under the
// repository root, resolving both to absolute paths first. This backs
// the DecisionPack invariant that a FORCE_UPLOAD path must lie under
// the repository root (spec §3 "DecisionPack").
func (r *Repository) ContainsPath(candidatePath string) (bool, error) {
	absRoot, err := filepath.Abs(r.root)
	if err != nil {
		return false, fmt.Errorf("repository: resolve root: %w", err)
	}
	absCandidate, err := filepath.Abs(candidatePath)
	if err != nil {
		return false, fmt.Errorf("repository: resolve candidate path: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absCandidate)
	if err != nil {
		return false, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}
	return true, nil
}
