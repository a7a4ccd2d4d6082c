package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/classifier"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"github.com/A3S-Lab/SafeClaw-sub000/internal/sensitivity"
)

// ContentType identifies the shape of a Resource's raw content.
type ContentType int

const (
	Text ContentType = iota
	Image
	Audio
	Video
	Document
	Code
	ToolOutput
)

func (c ContentType) String() string {
	switch c {
	case Text:
		return "text"
	case Image:
		return "image"
	case Audio:
		return "audio"
	case Video:
		return "video"
	case Document:
		return "document"
	case Code:
		return "code"
	case ToolOutput:
		return "tool_output"
	default:
		return "unknown"
	}
}

// StorageKind selects a StorageLocation variant.
type StorageKind int

const (
	// StorageMemory means the Resource lives only in the in-process store.
	StorageMemory StorageKind = iota
	// StorageLocal means the Resource's raw payload is on local disk.
	StorageLocal
	// StorageTee means the Resource was routed into the TEE.
	StorageTee
)

// StorageLocation is the sum type Local{Path}|Tee{Ref}|Memory, modeled as
// a tagged struct since Go has no enum-with-payload construct.
type StorageLocation struct {
	Kind StorageKind
	Path string // set when Kind == StorageLocal
	Ref  string // set when Kind == StorageTee
}

func LocalStorage(path string) StorageLocation { return StorageLocation{Kind: StorageLocal, Path: path} }
func TeeStorage(ref string) StorageLocation     { return StorageLocation{Kind: StorageTee, Ref: ref} }
func MemoryStorage() StorageLocation            { return StorageLocation{Kind: StorageMemory} }

// Resource is a classified piece of raw content (L1).
type Resource struct {
	id          uuid.UUID
	UserID      string
	ChannelID   string
	ChatID      string
	ContentType ContentType
	Raw         []byte
	Text        string
	Sensitivity sensitivity.Level
	Matches     []classifier.PiiMatch
	Storage     StorageLocation
	Taints      map[string]struct{}
	CreatedAt   time.Time
	Metadata    map[string]string
}

// ID implements HasID.
func (r *Resource) ID() uuid.UUID { return r.id }

// TaintList returns the taint labels as a sorted slice.
func (r *Resource) TaintList() []string { return sortedKeys(r.Taints) }

// Erase zeroizes the raw payload, extracted text, and user identifier in
// place, matching the lifecycle rule that a Resource is wiped on eviction.
func (r *Resource) Erase() {
	for i := range r.Raw {
		r.Raw[i] = 0
	}
	r.Raw = nil
	r.Text = ""
	r.UserID = ""
}

// ResourceBuilder constructs a Resource with required-field validation.
type ResourceBuilder struct {
	r   Resource
	err error
}

// NewResourceBuilder starts a builder with a fresh UUID and Normal
// sensitivity as defaults.
func NewResourceBuilder() *ResourceBuilder {
	return &ResourceBuilder{
		r: Resource{
			id:          uuid.New(),
			Sensitivity: sensitivity.Normal,
			Storage:     MemoryStorage(),
			Taints:      map[string]struct{}{},
			CreatedAt:   time.Now().UTC(),
			Metadata:    map[string]string{},
		},
	}
}

func (b *ResourceBuilder) UserID(id string) *ResourceBuilder    { b.r.UserID = id; return b }
func (b *ResourceBuilder) ChannelID(id string) *ResourceBuilder { b.r.ChannelID = id; return b }
func (b *ResourceBuilder) ChatID(id string) *ResourceBuilder    { b.r.ChatID = id; return b }
func (b *ResourceBuilder) ContentType(ct ContentType) *ResourceBuilder {
	b.r.ContentType = ct
	return b
}
func (b *ResourceBuilder) Raw(raw []byte) *ResourceBuilder   { b.r.Raw = raw; return b }
func (b *ResourceBuilder) Text(text string) *ResourceBuilder { b.r.Text = text; return b }
func (b *ResourceBuilder) Storage(loc StorageLocation) *ResourceBuilder {
	b.r.Storage = loc
	return b
}
func (b *ResourceBuilder) Metadata(key, value string) *ResourceBuilder {
	b.r.Metadata[key] = value
	return b
}

// Classification attaches classifier matches, raising Sensitivity to the
// max of the existing level and every match's level, and adding each
// match's rule name to the taint set — enforcing the Resource invariants
// from construction time rather than leaving callers to maintain them.
func (b *ResourceBuilder) Classification(result classifier.CompositeResult) *ResourceBuilder {
	b.r.Matches = result.Matches
	b.r.Sensitivity = sensitivity.Max(b.r.Sensitivity, result.Level)
	for _, m := range result.Matches {
		b.r.Taints[m.RuleName] = struct{}{}
	}
	return b
}

// Build validates required fields and returns the constructed Resource.
func (b *ResourceBuilder) Build() (*Resource, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.r.UserID == "" {
		return nil, scerr.Memory("user_id is required")
	}
	if b.r.ChannelID == "" {
		return nil, scerr.Memory("channel_id is required")
	}
	if b.r.ChatID == "" {
		return nil, scerr.Memory("chat_id is required")
	}
	r := b.r
	return &r, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}
