package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/onda-social/onda/internal/post"
)

// Signal stream parsing errors.
var (
	ErrInvalidCBOR      = errors.New("invalid CBOR data")
	ErrUnknownKind      = errors.New("unknown signal kind")
	ErrMissingSignal    = errors.New("missing signal body")
	ErrMissingPostID    = errors.New("missing post ID in signal")
	ErrInvalidScore     = errors.New("value score fields must be in [0, 1]")
	ErrInvalidVerdict   = errors.New("invalid fact-check verdict")
	ErrMissingEmbedding = errors.New("missing audience embedding")
)

// Signal kinds emitted by the content-value pipeline.
const (
	KindValue             = "value"
	KindFactCheck         = "fact_check"
	KindAudienceEmbedding = "audience_embedding"
)

// SignalMessage is the top-level CBOR envelope on the signal stream. The
// Signal body's shape depends on Kind.
type SignalMessage struct {
	// Kind is the signal type: value, fact_check, or audience_embedding.
	Kind string `cbor:"kind"`

	// TimeUS is the pipeline's emit timestamp in microseconds.
	TimeUS int64 `cbor:"time_us"`

	// Signal is the kind-specific payload, decoded lazily.
	Signal cbor.RawMessage `cbor:"signal,omitempty"`
}

// ValueSignal carries a quality estimate for one post.
type ValueSignal struct {
	PostID     string  `cbor:"post_id"`
	Total      float64 `cbor:"total"`
	Confidence float64 `cbor:"confidence"`
}

// FactCheckSignal carries a moderation verdict for one post.
type FactCheckSignal struct {
	PostID  string `cbor:"post_id"`
	Verdict string `cbor:"verdict"`
}

// AudienceEmbeddingSignal carries a generated target-audience embedding for
// one tuned post.
type AudienceEmbeddingSignal struct {
	PostID    string    `cbor:"post_id"`
	Embedding []float64 `cbor:"embedding"`
}

// ParsedSignal is one validated signal ready to apply. Exactly one of the
// payload fields is non-nil, matching Kind.
type ParsedSignal struct {
	Kind   string
	TimeUS int64

	Value             *ValueSignal
	FactCheck         *FactCheckSignal
	AudienceEmbedding *AudienceEmbeddingSignal
}

// PostID returns the subject post of the signal.
func (s *ParsedSignal) PostID() string {
	switch s.Kind {
	case KindValue:
		return s.Value.PostID
	case KindFactCheck:
		return s.FactCheck.PostID
	case KindAudienceEmbedding:
		return s.AudienceEmbedding.PostID
	}
	return ""
}

// DecodeSignalMessage decodes the CBOR envelope without touching the body.
func DecodeSignalMessage(data []byte) (*SignalMessage, error) {
	if len(data) == 0 {
		return nil, ErrInvalidCBOR
	}

	var msg SignalMessage
	dec := cbor.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
	}
	return &msg, nil
}

// ParseSignal decodes and validates one signal stream message.
func ParseSignal(data []byte) (*ParsedSignal, error) {
	msg, err := DecodeSignalMessage(data)
	if err != nil {
		return nil, err
	}
	if len(msg.Signal) == 0 {
		return nil, ErrMissingSignal
	}

	parsed := &ParsedSignal{Kind: msg.Kind, TimeUS: msg.TimeUS}

	switch msg.Kind {
	case KindValue:
		var sig ValueSignal
		if err := cbor.Unmarshal(msg.Signal, &sig); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
		}
		if sig.PostID == "" {
			return nil, ErrMissingPostID
		}
		if sig.Total < 0 || sig.Total > 1 || sig.Confidence < 0 || sig.Confidence > 1 {
			return nil, fmt.Errorf("%w: total=%v confidence=%v", ErrInvalidScore, sig.Total, sig.Confidence)
		}
		parsed.Value = &sig

	case KindFactCheck:
		var sig FactCheckSignal
		if err := cbor.Unmarshal(msg.Signal, &sig); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
		}
		if sig.PostID == "" {
			return nil, ErrMissingPostID
		}
		if !post.ValidFactCheckStatus(post.FactCheckStatus(sig.Verdict)) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVerdict, sig.Verdict)
		}
		parsed.FactCheck = &sig

	case KindAudienceEmbedding:
		var sig AudienceEmbeddingSignal
		if err := cbor.Unmarshal(msg.Signal, &sig); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCBOR, err)
		}
		if sig.PostID == "" {
			return nil, ErrMissingPostID
		}
		if len(sig.Embedding) == 0 {
			return nil, ErrMissingEmbedding
		}
		parsed.AudienceEmbedding = &sig

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}

	return parsed, nil
}

// EncodeSignal encodes a signal message to CBOR. Used by tests and tooling
// that replay pipeline traffic.
func EncodeSignal(kind string, timeUS int64, body interface{}) ([]byte, error) {
	raw, err := cbor.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signal body: %w", err)
	}
	out, err := cbor.Marshal(SignalMessage{Kind: kind, TimeUS: timeUS, Signal: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to encode signal envelope: %w", err)
	}
	return out, nil
}
