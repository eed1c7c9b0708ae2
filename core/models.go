package core

import (
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// fileIDBytes is the digest size used for file ids (12 hex characters).
const fileIDBytes = 6

// FileID is a content-addressable identifier for an item.
// It is 12 lowercase hex characters derived from content and relative path.
type FileID string

// GenerateFileID derives a deterministic FileID from content and the logical
// relative path of the item using BLAKE2b hashing.
// Identical (content, path) pairs always produce identical IDs, so re-deriving
// an id on retry reproduces exactly the id written to the ledger.
func GenerateFileID(content []byte, relativePath string) FileID {
	h, _ := blake2b.New(fileIDBytes, nil)
	h.Write([]byte(filepath.ToSlash(relativePath)))
	h.Write([]byte{0})
	h.Write(content)
	return FileID(hex.EncodeToString(h.Sum(nil)))
}

// Valid reports whether the id has the 12 lowercase hex character shape.
func (id FileID) Valid() bool {
	if len(id) != fileIDBytes*2 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func (id FileID) String() string {
	return string(id)
}

// PhaseType identifies a top-level pass over the data.
type PhaseType string

const (
	PhaseImport   PhaseType = "import"
	PhaseOrganize PhaseType = "organize"
)

// PhaseTypes lists every phase in execution order.
var PhaseTypes = []PhaseType{PhaseImport, PhaseOrganize}

// StageType identifies a stage within a phase.
type StageType string

const (
	StageExtract   StageType = "extract"
	StageTransform StageType = "transform"
	StageLoad      StageType = "load"
)

// StageTypes lists every stage in execution order.
var StageTypes = []StageType{StageExtract, StageTransform, StageLoad}

// ItemStatus is the lifecycle state of a ProcessingItem.
// Transitions only move forward; see ProcessingItem.Transition.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemFiltered   ItemStatus = "filtered"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemFiltered
}

// ChunkInfo describes an item's position within its chunked parent.
// Either all of these fields are present (the item is a chunk) or none are.
type ChunkInfo struct {
	Index        int    `json:"chunk_index"`
	Total        int    `json:"total_chunks"`
	ParentItemID FileID `json:"parent_item_id"`
}

// ItemMetadata holds the commonly used optional fields of an item plus an
// extension map for provider-specific values.
type ItemMetadata struct {
	Provider       string            `json:"provider,omitempty"`
	Title          string            `json:"title,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	MessageCount   int               `json:"message_count,omitempty"`
	Category       string            `json:"category,omitempty"`
	SkippedReason  string            `json:"skipped_reason,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// ProcessingItem is the unit of work flowing through a phase.
type ProcessingItem struct {
	ItemID             FileID       `json:"item_id"`
	SourcePath         string       `json:"source_path"`
	CurrentStage       StageType    `json:"current_stage,omitempty"`
	CurrentStep        string       `json:"current_step,omitempty"`
	Status             ItemStatus   `json:"status"`
	Metadata           ItemMetadata `json:"metadata"`
	Content            string       `json:"content,omitempty"`
	TransformedContent string       `json:"transformed_content,omitempty"`
	OutputPath         string       `json:"output_path,omitempty"`
	Error              string       `json:"error,omitempty"`
	Chunk              *ChunkInfo   `json:"chunk,omitempty"`
}

// NewProcessingItem creates a pending item whose id is derived from its content
// and relative path.
func NewProcessingItem(relativePath string, content []byte) *ProcessingItem {
	return &ProcessingItem{
		ItemID:     GenerateFileID(content, relativePath),
		SourcePath: relativePath,
		Status:     ItemPending,
		Content:    string(content),
	}
}

// IsChunked reports whether the item is one chunk of a larger source item.
func (p *ProcessingItem) IsChunked() bool {
	return p.Chunk != nil
}

// Transition moves the item to the given status.
// Returns ErrInvalidTransition when the move would go backwards or leave a
// terminal status.
func (p *ProcessingItem) Transition(to ItemStatus) error {
	if p.Status == to && !to.IsTerminal() {
		return nil
	}
	if !validTransition(p.Status, to) {
		return &TransitionError{From: p.Status, To: to}
	}
	p.Status = to
	return nil
}

// Fail marks the item as failed at the given step.
// Items already in a terminal status are left untouched.
func (p *ProcessingItem) Fail(step string, err error) {
	if p.Status.IsTerminal() {
		return
	}
	p.CurrentStep = step
	if err != nil {
		p.Error = err.Error()
	}
	p.Status = ItemFailed
}

// Filter marks the item as filtered with the given reason.
func (p *ProcessingItem) Filter(reason string) {
	if p.Status.IsTerminal() {
		return
	}
	p.Metadata.SkippedReason = reason
	p.Status = ItemFiltered
}

func validTransition(from, to ItemStatus) bool {
	switch from {
	case ItemPending:
		return to == ItemProcessing || to == ItemFailed || to == ItemFiltered
	case ItemProcessing:
		return to == ItemCompleted || to == ItemFailed || to == ItemFiltered
	default:
		return false
	}
}

// Message is a single provider-neutral conversation message.
type Message struct {
	Role       string     `json:"role"`
	Text       string     `json:"text"`
	CreateTime *time.Time `json:"create_time,omitempty"`
}

// Conversation is the provider-neutral form of a chat log used for chunking.
type Conversation struct {
	ID       string    `json:"conversation_id"`
	Title    string    `json:"title,omitempty"`
	Messages []Message `json:"messages"`
}

// Document is the final knowledge document produced by the Load stage.
type Document struct {
	ItemID       FileID
	SourcePath   string
	Title        string
	Summary      string
	Tags         []string
	Body         string
	Category     string
	ParentItemID FileID
	ChunkIndex   int
	TotalChunks  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransformCheckpoint records the Transform output of an item so a resumed run
// can restore it without calling the knowledge service again.
type TransformCheckpoint struct {
	ItemID             FileID
	Stage              StageType
	TransformedContent string
	Title              string
	Category           string
	UpdatedAt          time.Time
}
