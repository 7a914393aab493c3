package codec

import "fmt"

// MessageKind discriminates the closed IsmpMessage sum type. Adding a variant is a
// breaking change, per §9's "tagged unions over inheritance" design note; every switch
// over Kind in this module is written to be exhaustive and to fail loudly (panic or a
// named error) on an unrecognized value rather than silently falling through.
type MessageKind uint8

const (
	MessageKindPostRequest MessageKind = iota
	MessageKindGetRequest
	MessageKindGetResponse
	MessageKindTimeoutPostRequest
)

// IsmpMessage is the sum type constructed by the tracker (C5) when advancing a stage and
// consumed by a Chain Adapter's Encode method. It is never persisted — see §3's
// ownership/lifecycle note.
type IsmpMessage struct {
	Kind MessageKind

	// PostRequest / TimeoutPostRequest
	Requests []PostRequest
	Proof    Proof

	// GetRequest
	GetRequests    []GetRequest
	SourceProof    Proof
	ResponseProof  Proof

	// GetResponse
	Responses []Response

	// Signer is empty for unsigned submissions (the common case for hub/source
	// timeout and GET-request handling); populated only where the transport
	// requires an explicit signer field.
	Signer []byte
}

func NewPostRequestMessage(requests []PostRequest, proof Proof, signer []byte) IsmpMessage {
	return IsmpMessage{Kind: MessageKindPostRequest, Requests: requests, Proof: proof, Signer: signer}
}

func NewGetRequestMessage(requests []GetRequest, sourceProof, responseProof Proof, signer []byte) IsmpMessage {
	return IsmpMessage{Kind: MessageKindGetRequest, GetRequests: requests, SourceProof: sourceProof, ResponseProof: responseProof, Signer: signer}
}

func NewGetResponseMessage(responses []Response, proof Proof, signer []byte) IsmpMessage {
	return IsmpMessage{Kind: MessageKindGetResponse, Responses: responses, Proof: proof, Signer: signer}
}

func NewTimeoutPostRequestMessage(requests []PostRequest, proof Proof) IsmpMessage {
	return IsmpMessage{Kind: MessageKindTimeoutPostRequest, Requests: requests, Proof: proof}
}

// Encode writes the SCALE tagged-enum wire form of m: a one-byte variant tag followed by
// the variant's fields in the order they're declared in §3.
func (m IsmpMessage) Encode(e *Encoder) error {
	e.PutU8(uint8(m.Kind))
	switch m.Kind {
	case MessageKindPostRequest:
		encodeRequestSlice(e, m.Requests)
		m.Proof.Encode(e)
		e.PutBytes(m.Signer)
	case MessageKindGetRequest:
		e.PutCompact(uint64(len(m.GetRequests)))
		for _, r := range m.GetRequests {
			r.Encode(e)
		}
		m.SourceProof.Encode(e)
		m.ResponseProof.Encode(e)
		e.PutBytes(m.Signer)
	case MessageKindGetResponse:
		e.PutCompact(uint64(len(m.Responses)))
		for _, r := range m.Responses {
			r.Encode(e)
		}
		m.Proof.Encode(e)
		e.PutBytes(m.Signer)
	case MessageKindTimeoutPostRequest:
		encodeRequestSlice(e, m.Requests)
		m.Proof.Encode(e)
	default:
		return fmt.Errorf("codec: encode IsmpMessage: unrecognized variant %d", m.Kind)
	}
	return nil
}

func encodeRequestSlice(e *Encoder, requests []PostRequest) {
	e.PutCompact(uint64(len(requests)))
	for _, r := range requests {
		r.Encode(e)
	}
}

// DecodeIsmpMessage reads the tagged enum written by IsmpMessage.Encode.
func DecodeIsmpMessage(d *Decoder) (IsmpMessage, error) {
	tag, err := d.GetU8()
	if err != nil {
		return IsmpMessage{}, err
	}
	m := IsmpMessage{Kind: MessageKind(tag)}
	switch m.Kind {
	case MessageKindPostRequest:
		reqs, err := decodeRequestSlice(d)
		if err != nil {
			return m, err
		}
		m.Requests = reqs
		if m.Proof, err = DecodeProof(d); err != nil {
			return m, err
		}
		if m.Signer, err = d.GetBytes(); err != nil {
			return m, err
		}
	case MessageKindGetRequest:
		count, err := d.GetCompact()
		if err != nil {
			return m, err
		}
		m.GetRequests = make([]GetRequest, 0, count)
		for i := uint64(0); i < count; i++ {
			r, err := DecodeGetRequest(d)
			if err != nil {
				return m, err
			}
			m.GetRequests = append(m.GetRequests, r)
		}
		if m.SourceProof, err = DecodeProof(d); err != nil {
			return m, err
		}
		if m.ResponseProof, err = DecodeProof(d); err != nil {
			return m, err
		}
		if m.Signer, err = d.GetBytes(); err != nil {
			return m, err
		}
	case MessageKindGetResponse:
		count, err := d.GetCompact()
		if err != nil {
			return m, err
		}
		m.Responses = make([]Response, 0, count)
		for i := uint64(0); i < count; i++ {
			r, err := DecodeResponse(d)
			if err != nil {
				return m, err
			}
			m.Responses = append(m.Responses, r)
		}
		if m.Proof, err = DecodeProof(d); err != nil {
			return m, err
		}
		if m.Signer, err = d.GetBytes(); err != nil {
			return m, err
		}
	case MessageKindTimeoutPostRequest:
		reqs, err := decodeRequestSlice(d)
		if err != nil {
			return m, err
		}
		m.Requests = reqs
		if m.Proof, err = DecodeProof(d); err != nil {
			return m, err
		}
	default:
		return m, fmt.Errorf("codec: decode IsmpMessage: unrecognized variant tag %d", tag)
	}
	return m, nil
}

func decodeRequestSlice(d *Decoder) ([]PostRequest, error) {
	count, err := d.GetCompact()
	if err != nil {
		return nil, err
	}
	out := make([]PostRequest, 0, count)
	for i := uint64(0); i < count; i++ {
		r, err := DecodePostRequest(d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
