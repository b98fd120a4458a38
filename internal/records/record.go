package records

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/internal/attachment"
)

// Record is a persisted owner of attachments. Attachments holds the stored
// attributes of each attachment by name.
type Record struct {
	ID          uuid.UUID                        `json:"id"`
	Class       string                           `json:"class"`
	CreatedAt   time.Time                        `json:"created_at"`
	UpdatedAt   time.Time                        `json:"updated_at"`
	Attachments map[string]attachment.Attributes `json:"-"`
}

func (r Record) clone() Record {
	r.Attachments = maps.Clone(r.Attachments)
	return r
}

// Model is a Record bound to live attachments. It is the owner passed to
// each attachment and is not safe for concurrent use.
type Model struct {
	record      Record
	names       []string
	attachments map[string]*attachment.Attachment
}

// ID returns the record id. Model satisfies attachment.Owner.
func (m *Model) ID() string { return m.record.ID.String() }

// Record returns the persisted record.
func (m *Model) Record() Record { return m.record.clone() }

// Class returns the record class.
func (m *Model) Class() string { return m.record.Class }

// Attachment returns the named attachment.
func (m *Model) Attachment(name string) (*attachment.Attachment, error) {
	a, ok := m.attachments[name]
	if !ok {
		return nil, ErrUnknownAttachment
	}
	return a, nil
}

// Attachments returns every attachment in declaration order.
func (m *Model) Attachments() []*attachment.Attachment {
	out := make([]*attachment.Attachment, len(m.names))
	for i, name := range m.names {
		out[i] = m.attachments[name]
	}
	return out
}

// Dirty reports whether any attachment has an unsaved change.
func (m *Model) Dirty() bool {
	for _, a := range m.attachments {
		if a.Dirty() {
			return true
		}
	}
	return false
}

// Discard drops unsaved attachment changes and their processed files.
func (m *Model) Discard() {
	for name, a := range m.attachments {
		if a.Dirty() {
			a.Reload(m.record.Attachments[name])
		}
	}
}

// AttachmentView is the JSON form of one attachment.
type AttachmentView struct {
	attachment.Attributes
	URLs map[string]string `json:"urls"`
}

// View is the JSON form of a record and its attachments.
type View struct {
	Record
	Attachments map[string]AttachmentView `json:"attachments"`
}

// View renders the record with the URL of every style.
func (m *Model) View() View {
	v := View{
		Record:      m.Record(),
		Attachments: make(map[string]AttachmentView, len(m.names)),
	}
	for _, name := range m.names {
		a := m.attachments[name]
		urls := make(map[string]string)
		for _, style := range a.Definition().StyleNames() {
			urls[style] = a.URL(style)
		}
		v.Attachments[name] = AttachmentView{Attributes: a.Attributes(), URLs: urls}
	}
	return v
}
