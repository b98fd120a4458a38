// Package attachment manages the file attached to a record: assignment,
// style processing, and the queued writes and deletes that are flushed
// when the owning record commits.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirill555101/paperclip/pkg/storage"
	"github.com/kirill555101/paperclip/pkg/tempfile"
	"github.com/kirill555101/paperclip/pkg/thumbnail"
)

// State is the position of an attachment in its save lifecycle.
type State int

const (
	Clean State = iota
	Assigned
	AssignedNil
	Validated
	Flushing
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Assigned:
		return "assigned"
	case AssignedNil:
		return "assigned_nil"
	case Validated:
		return "validated"
	case Flushing:
		return "flushing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Attributes are the persisted metadata columns of an attachment.
type Attributes struct {
	FileName    *string    `json:"file_name"`
	ContentType *string    `json:"content_type"`
	FileSize    *int64     `json:"file_size"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// Present reports whether a file is recorded.
func (a Attributes) Present() bool {
	return a.FileName != nil && *a.FileName != ""
}

// Owner is the record an attachment belongs to.
type Owner interface {
	ID() string
}

// Processor produces style derivatives. *thumbnail.Processor satisfies it.
type Processor interface {
	Make(ctx context.Context, source string, opts thumbnail.Options) (*tempfile.File, error)
}

// Upload is a named byte stream, typically a multipart form file.
type Upload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Attachment is the file attached to one record under one Definition.
// It is not safe for concurrent use.
type Attachment struct {
	def       *Definition
	owner     Owner
	backend   storage.Backend
	processor Processor
	tempDir   string
	logger    *slog.Logger
	now       func() time.Time

	attrs     Attributes
	persisted Attributes
	state     State
	literal   *string
	errs      []error

	queuedForWrite  map[string]*tempfile.File
	queuedForDelete []storage.Target
	deleteCaptured  bool
}

// Option configures an Attachment.
type Option func(*Attachment)

// WithTempDir sets the directory for spooled and processed files.
func WithTempDir(dir string) Option {
	return func(a *Attachment) { a.tempDir = dir }
}

// WithClock overrides the time source for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Attachment) { a.now = now }
}

// New creates an attachment for owner, loaded from persisted attributes.
// def must already be finalized.
func New(def *Definition, owner Owner, attrs Attributes, backend storage.Backend, processor Processor, logger *slog.Logger, opts ...Option) *Attachment {
	a := &Attachment{
		def:       def,
		owner:     owner,
		backend:   backend,
		processor: processor,
		logger:    logger.With("system", "attachment", "attachment", def.Name),
		now:       time.Now,
		attrs:     attrs,
		persisted: attrs,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Definition returns the attachment's definition.
func (a *Attachment) Definition() *Definition { return a.def }

// Attributes returns the current, possibly unsaved, metadata.
func (a *Attachment) Attributes() Attributes { return a.attrs }

// State returns the lifecycle state.
func (a *Attachment) State() State { return a.state }

// Dirty reports whether there is anything to flush.
func (a *Attachment) Dirty() bool { return a.state != Clean }

// Errors returns processing errors from the last assignment.
func (a *Attachment) Errors() []error { return a.errs }

// Valid reports whether the last assignment processed cleanly.
func (a *Attachment) Valid() bool { return len(a.errs) == 0 }

// Literal returns the string last assigned, if any. Strings are not files;
// the value is recorded for the owner's validations and otherwise ignored.
func (a *Attachment) Literal() (string, bool) {
	if a.literal == nil {
		return "", false
	}
	return *a.literal, true
}

// FileName returns the current file name or "".
func (a *Attachment) FileName() string {
	if a.attrs.FileName == nil {
		return ""
	}
	return *a.attrs.FileName
}

// Assign sets the attachment's content. v may be an *os.File, an Upload,
// another *Attachment, a string, or nil. Processing failures do not return
// an error; they are reported by Errors and block BeforeCommit.
func (a *Attachment) Assign(ctx context.Context, v any) error {
	switch src := v.(type) {
	case nil:
		a.assignNil()
		return nil
	case string:
		a.assignLiteral(src)
		return nil
	case *os.File:
		if src == nil {
			a.assignNil()
			return nil
		}
		return a.assignPath(ctx, src.Name(), filepath.Base(src.Name()), "")
	case Upload:
		return a.assignUpload(ctx, src)
	case *Upload:
		if src == nil {
			a.assignNil()
			return nil
		}
		return a.assignUpload(ctx, *src)
	case *Attachment:
		if src == nil {
			a.assignNil()
			return nil
		}
		return a.assignAttachment(ctx, src)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedInput, v)
	}
}

func (a *Attachment) assignNil() {
	a.captureDeletes()
	a.discardWrites()

	a.attrs = Attributes{}
	a.literal = nil
	a.errs = nil
	a.state = AssignedNil
}

func (a *Attachment) assignLiteral(s string) {
	a.reset(a.persisted)
	a.literal = &s
}

func (a *Attachment) assignUpload(ctx context.Context, u Upload) error {
	if u.Reader == nil {
		return fmt.Errorf("%w: upload without content", ErrUnsupportedInput)
	}

	spool, err := tempfile.FromReader(a.tempDir, filepath.Ext(u.Name), u.Reader)
	if err != nil {
		return err
	}
	defer spool.Discard()

	return a.assignPath(ctx, spool.Path(), filepath.Base(u.Name), u.ContentType)
}

func (a *Attachment) assignAttachment(ctx context.Context, other *Attachment) error {
	if !other.attrs.Present() {
		a.assignNil()
		return nil
	}

	rc, err := other.Open(ctx, Original)
	if err != nil {
		return fmt.Errorf("read source attachment: %w", err)
	}
	defer rc.Close()

	name := *other.attrs.FileName
	spool, err := tempfile.FromReader(a.tempDir, filepath.Ext(name), rc)
	if err != nil {
		return err
	}
	defer spool.Discard()

	contentType := ""
	if other.attrs.ContentType != nil {
		contentType = *other.attrs.ContentType
	}
	return a.assignPath(ctx, spool.Path(), name, contentType)
}

func (a *Attachment) assignPath(ctx context.Context, path, name, contentType string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrUnsupportedInput, path)
	}

	if contentType == "" {
		if mt, err := mimetype.DetectFile(path); err == nil {
			contentType = mt.String()
		}
	}

	a.captureDeletes()
	a.discardWrites()
	a.literal = nil
	a.errs = nil

	writes, errs := a.process(ctx, path)
	a.queuedForWrite = writes
	a.errs = errs

	size := info.Size()
	if f, ok := writes[Original]; ok {
		if s, err := f.Size(); err == nil {
			size = s
		}
	}
	updated := a.now().UTC().Truncate(time.Second)

	a.attrs = Attributes{
		FileName:    &name,
		ContentType: &contentType,
		FileSize:    &size,
		UpdatedAt:   &updated,
	}
	a.state = Assigned

	a.logger.Debug("file assigned",
		"file_name", name,
		"content_type", contentType,
		"styles", len(writes),
		"errors", len(errs))
	return nil
}

// process makes every style from the file at path. Styles that fail are
// left out of the result and reported as errors when the definition is
// whiny.
func (a *Attachment) process(ctx context.Context, path string) (map[string]*tempfile.File, []error) {
	writes := make(map[string]*tempfile.File, len(a.def.Styles))
	var errs []error

	for _, style := range a.def.Styles {
		var (
			out *tempfile.File
			err error
		)
		if style.passthrough() {
			out, err = tempfile.Copy(a.tempDir, path)
		} else {
			out, err = a.processor.Make(ctx, path, thumbnail.Options{
				Geometry:       style.Geometry,
				Format:         style.Format,
				ConvertOptions: a.def.convertOptions(style),
				Whiny:          a.def.Whiny,
			})
		}

		if err != nil {
			a.logger.Warn("style processing failed", "style", style.Name, "error", err)
			if a.def.Whiny {
				errs = append(errs, fmt.Errorf("%s: %w", style.Name, err))
			}
			continue
		}
		writes[style.Name] = out
	}

	return writes, errs
}

// captureDeletes queues every stored style of the persisted file once per
// flush cycle.
func (a *Attachment) captureDeletes() {
	if a.deleteCaptured {
		return
	}
	a.deleteCaptured = true
	a.queuedForDelete = a.targets(a.persisted)
}

func (a *Attachment) discardWrites() {
	for style, f := range a.queuedForWrite {
		if err := f.Discard(); err != nil {
			a.logger.Warn("failed to discard processed file", "style", style, "error", err)
		}
	}
	a.queuedForWrite = nil
}

func (a *Attachment) reset(attrs Attributes) {
	a.discardWrites()
	a.attrs = attrs
	a.persisted = attrs
	a.queuedForDelete = nil
	a.deleteCaptured = false
	a.literal = nil
	a.errs = nil
	a.state = Clean
}

// Reload discards pending changes and loads attrs as the persisted state.
func (a *Attachment) Reload(attrs Attributes) {
	a.reset(attrs)
}

// BeforeCommit validates the pending change. It must succeed before the
// owner persists the new attributes.
func (a *Attachment) BeforeCommit(ctx context.Context) error {
	if a.state == Clean {
		return nil
	}
	if len(a.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrProcessing, errors.Join(a.errs...))
	}

	a.pruneDeletes()
	if a.state == Assigned {
		a.state = Validated
	}
	return nil
}

// pruneDeletes drops queued deletes whose key is about to be rewritten.
func (a *Attachment) pruneDeletes() {
	if len(a.queuedForDelete) == 0 || len(a.queuedForWrite) == 0 {
		return
	}

	writing := make(map[string]bool, len(a.queuedForWrite))
	for style := range a.queuedForWrite {
		if t, ok := a.target(style, a.attrs); ok {
			writing[t.Key] = true
		}
	}

	kept := a.queuedForDelete[:0]
	for _, t := range a.queuedForDelete {
		if !writing[t.Key] {
			kept = append(kept, t)
		}
	}
	a.queuedForDelete = kept
}

// AfterCommit flushes queued writes, then queued deletes. Writes must all
// succeed before anything is deleted, so a stored file is replaced without
// a window where neither version exists. On write failure the queues are
// kept and the error wraps ErrSave. Delete failures are logged only.
func (a *Attachment) AfterCommit(ctx context.Context) error {
	if a.state == Clean {
		return nil
	}
	if len(a.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrProcessing, errors.Join(a.errs...))
	}

	prev := a.state
	a.state = Flushing
	a.pruneDeletes()

	var errs []error
	for _, style := range a.def.Styles {
		f, ok := a.queuedForWrite[style.Name]
		if !ok {
			continue
		}
		if err := a.write(ctx, style, f); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", style.Name, err))
		}
	}
	if len(errs) > 0 {
		a.state = prev
		return fmt.Errorf("%w: %w", ErrSave, errors.Join(errs...))
	}

	if len(a.queuedForDelete) > 0 {
		if err := a.backend.Delete(ctx, a.queuedForDelete...); err != nil {
			a.logger.Error("failed to delete replaced files", "keys", storage.Keys(a.queuedForDelete), "error", err)
		}
	}

	a.logger.Info("attachment flushed",
		"id", a.owner.ID(),
		"written", len(a.queuedForWrite),
		"deleted", len(a.queuedForDelete))

	a.reset(a.attrs)
	return nil
}

func (a *Attachment) write(ctx context.Context, style Style, f *tempfile.File) error {
	t, ok := a.target(style.Name, a.attrs)
	if !ok {
		return ErrNoFile
	}
	if style.Format != "" {
		if mt, err := mimetype.DetectFile(f.Path()); err == nil {
			t.ContentType = mt.String()
		}
	}

	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	return a.backend.Write(ctx, t, r)
}

// AfterDestroy deletes every stored style after the owner is destroyed.
// Failures are logged and never returned.
func (a *Attachment) AfterDestroy(ctx context.Context) {
	targets := a.targets(a.persisted)
	if a.deleteCaptured {
		targets = mergeTargets(targets, a.queuedForDelete)
	}

	if len(targets) > 0 {
		if err := a.backend.Delete(ctx, targets...); err != nil {
			a.logger.Error("failed to delete destroyed files", "keys", storage.Keys(targets), "error", err)
		}
	}

	a.reset(Attributes{})
}

// Path returns the storage key of style, or "" without a file.
func (a *Attachment) Path(style string) string {
	if style == "" {
		style = a.def.DefaultStyle
	}
	t, ok := a.target(style, a.attrs)
	if !ok {
		return ""
	}
	return t.Key
}

// URL returns the public URL of style. Without a file the missing URL is
// returned.
func (a *Attachment) URL(style string) string {
	if style == "" {
		style = a.def.DefaultStyle
	}
	s, ok := a.def.Style(style)
	if !ok {
		s = Style{Name: style}
	}

	ctx := a.def.context(s, a.owner.ID(), a.attrs)
	if !a.attrs.Present() {
		return a.def.Interpolator.Expand(a.def.MissingURL, ctx)
	}
	return a.def.Interpolator.Expand(a.def.URL, ctx)
}

// Target returns the storage target of style for the current attributes.
func (a *Attachment) Target(style string) (storage.Target, bool) {
	if style == "" {
		style = a.def.DefaultStyle
	}
	return a.target(style, a.attrs)
}

// Exists reports whether style is stored.
func (a *Attachment) Exists(ctx context.Context, style string) (bool, error) {
	t, ok := a.Target(style)
	if !ok {
		return false, nil
	}
	return a.backend.Exists(ctx, t)
}

// Open reads style. An unflushed assignment is read from its processed
// file.
func (a *Attachment) Open(ctx context.Context, style string) (io.ReadCloser, error) {
	if style == "" {
		style = a.def.DefaultStyle
	}
	if f, ok := a.queuedForWrite[style]; ok {
		return f.Open()
	}

	t, ok := a.target(style, a.attrs)
	if !ok {
		return nil, ErrNoFile
	}
	return a.backend.Read(ctx, t)
}

func (a *Attachment) target(name string, attrs Attributes) (storage.Target, bool) {
	if !attrs.Present() {
		return storage.Target{}, false
	}
	style, ok := a.def.Style(name)
	if !ok {
		return storage.Target{}, false
	}

	ctx := a.def.context(style, a.owner.ID(), attrs)
	return storage.Target{
		Style:       style.Name,
		Key:         a.def.Interpolator.Expand(a.def.Path, ctx),
		ContentType: a.def.contentType(style, attrs),
	}, true
}

func (a *Attachment) targets(attrs Attributes) []storage.Target {
	if !attrs.Present() {
		return nil
	}
	targets := make([]storage.Target, 0, len(a.def.Styles))
	for _, style := range a.def.Styles {
		if t, ok := a.target(style.Name, attrs); ok {
			targets = append(targets, t)
		}
	}
	return targets
}

func mergeTargets(a, b []storage.Target) []storage.Target {
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[t.Key] = true
	}
	for _, t := range b {
		if !seen[t.Key] {
			a = append(a, t)
			seen[t.Key] = true
		}
	}
	return a
}
