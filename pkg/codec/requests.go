package codec

// PostRequest is the cross-chain request envelope dispatched from source to dest.
type PostRequest struct {
	Source           StateMachineId
	Dest             StateMachineId
	From             []byte
	To               []byte
	Nonce            uint64
	Body             []byte
	TimeoutTimestamp uint64
}

// Commitment computes keccak(packed(source_str, dest_str, nonce, timeout, from, to,
// body)), per §3. Source/dest are encoded as their UTF-8 string form, matching the
// hub's own commitment computation so a relayed request's commitment is stable across
// chain families.
func (r PostRequest) Commitment() []byte {
	return Keccak256(
		[]byte(r.Source.String()),
		[]byte(r.Dest.String()),
		beU64(r.Nonce),
		beU64(r.TimeoutTimestamp),
		r.From,
		r.To,
		r.Body,
	)
}

// Encode writes the SCALE struct encoding of a PostRequest.
func (r PostRequest) Encode(e *Encoder) {
	r.Source.Encode(e)
	r.Dest.Encode(e)
	e.PutBytes(r.From)
	e.PutBytes(r.To)
	e.PutU64(r.Nonce)
	e.PutBytes(r.Body)
	e.PutU64(r.TimeoutTimestamp)
}

// DecodePostRequest reads the struct written by PostRequest.Encode.
func DecodePostRequest(d *Decoder) (PostRequest, error) {
	var r PostRequest
	var err error
	if r.Source, err = DecodeStateMachineId(d); err != nil {
		return r, err
	}
	if r.Dest, err = DecodeStateMachineId(d); err != nil {
		return r, err
	}
	if r.From, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.To, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.Nonce, err = d.GetU64(); err != nil {
		return r, err
	}
	if r.Body, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.TimeoutTimestamp, err = d.GetU64(); err != nil {
		return r, err
	}
	return r, nil
}

// GetRequest extends PostRequest by replacing (to, body) with (keys, context, height).
type GetRequest struct {
	Source           StateMachineId
	Dest             StateMachineId
	From             []byte
	Nonce            uint64
	Height           uint64
	TimeoutTimestamp uint64
	Keys             [][]byte
	Context          []byte
}

// Commitment computes keccak(packed(source, dest, nonce, height, timeout, from,
// concat(keys), context)), per §3.
func (r GetRequest) Commitment() []byte {
	concatKeys := make([]byte, 0)
	for _, k := range r.Keys {
		concatKeys = append(concatKeys, k...)
	}
	return Keccak256(
		[]byte(r.Source.String()),
		[]byte(r.Dest.String()),
		beU64(r.Nonce),
		beU64(r.Height),
		beU64(r.TimeoutTimestamp),
		r.From,
		concatKeys,
		r.Context,
	)
}

// Encode writes the SCALE struct encoding of a GetRequest.
func (r GetRequest) Encode(e *Encoder) {
	r.Source.Encode(e)
	r.Dest.Encode(e)
	e.PutBytes(r.From)
	e.PutU64(r.Nonce)
	e.PutCompact(uint64(len(r.Keys)))
	for _, k := range r.Keys {
		e.PutBytes(k)
	}
	e.PutU64(r.Height)
	e.PutU64(r.TimeoutTimestamp)
	e.PutBytes(r.Context)
}

// DecodeGetRequest reads the struct written by GetRequest.Encode.
func DecodeGetRequest(d *Decoder) (GetRequest, error) {
	var r GetRequest
	var err error
	if r.Source, err = DecodeStateMachineId(d); err != nil {
		return r, err
	}
	if r.Dest, err = DecodeStateMachineId(d); err != nil {
		return r, err
	}
	if r.From, err = d.GetBytes(); err != nil {
		return r, err
	}
	if r.Nonce, err = d.GetU64(); err != nil {
		return r, err
	}
	count, err := d.GetCompact()
	if err != nil {
		return r, err
	}
	r.Keys = make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		k, err := d.GetBytes()
		if err != nil {
			return r, err
		}
		r.Keys = append(r.Keys, k)
	}
	if r.Height, err = d.GetU64(); err != nil {
		return r, err
	}
	if r.TimeoutTimestamp, err = d.GetU64(); err != nil {
		return r, err
	}
	if r.Context, err = d.GetBytes(); err != nil {
		return r, err
	}
	return r, nil
}

// Response is the ISMP response payload carried by a GetResponse message.
type Response struct {
	Request GetRequest
	Values  [][]byte
}

func (r Response) Encode(e *Encoder) {
	r.Request.Encode(e)
	e.PutCompact(uint64(len(r.Values)))
	for _, v := range r.Values {
		e.PutBytes(v)
	}
}

func DecodeResponse(d *Decoder) (Response, error) {
	var r Response
	var err error
	if r.Request, err = DecodeGetRequest(d); err != nil {
		return r, err
	}
	count, err := d.GetCompact()
	if err != nil {
		return r, err
	}
	r.Values = make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := d.GetBytes()
		if err != nil {
			return r, err
		}
		r.Values = append(r.Values, v)
	}
	return r, nil
}

// beU64 renders v as an 8-byte big-endian word, matching the commitment packing
// convention in §3/§8 scenario S5 (u64_be(...)).
func beU64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(v >> (8 * i))
	}
	return out
}
