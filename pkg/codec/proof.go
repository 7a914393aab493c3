package codec

// Proof is the family-specific proof envelope attached to an ISMP message. Its Payload
// is opaque to this package: an MMR multiproof envelope (see MMRProofEnvelope below) for
// EVM source chains, or an overlay-root/state-root trie proof envelope tagged with
// Hasher for Substrate source chains.
type Proof struct {
	Height           uint64
	StateMachine     StateMachineId
	ConsensusStateId [4]byte
	Payload          []byte
}

func (p Proof) Encode(e *Encoder) {
	e.PutU64(p.Height)
	p.StateMachine.Encode(e)
	e.PutFixed(p.ConsensusStateId[:])
	e.PutBytes(p.Payload)
}

func DecodeProof(d *Decoder) (Proof, error) {
	var p Proof
	var err error
	if p.Height, err = d.GetU64(); err != nil {
		return p, err
	}
	if p.StateMachine, err = DecodeStateMachineId(d); err != nil {
		return p, err
	}
	csid, err := d.GetFixed(4)
	if err != nil {
		return p, err
	}
	copy(p.ConsensusStateId[:], csid)
	if p.Payload, err = d.GetBytes(); err != nil {
		return p, err
	}
	return p, nil
}

// LeafIndexAndPos pairs an MMR leaf index with its node position, as carried by the
// wire-format MMR envelope.
type LeafIndexAndPos struct {
	LeafIndex uint64
	Pos       uint64
}

// MMRProofEnvelope is the SCALE-encoded MMR multiproof wire shape named in §4.1:
// {leafIndexAndPos: [{leafIndex, pos}], leafCount, items: [H256]}.
type MMRProofEnvelope struct {
	LeafIndexAndPos []LeafIndexAndPos
	LeafCount       uint64
	Items           [][]byte // each exactly 32 bytes (H256)
}

func (m MMRProofEnvelope) Encode(e *Encoder) {
	e.PutCompact(uint64(len(m.LeafIndexAndPos)))
	for _, lp := range m.LeafIndexAndPos {
		e.PutU64(lp.LeafIndex)
		e.PutU64(lp.Pos)
	}
	e.PutU64(m.LeafCount)
	e.PutCompact(uint64(len(m.Items)))
	for _, it := range m.Items {
		e.PutFixed(it)
	}
}

func DecodeMMRProofEnvelope(d *Decoder) (MMRProofEnvelope, error) {
	var m MMRProofEnvelope
	n, err := d.GetCompact()
	if err != nil {
		return m, err
	}
	m.LeafIndexAndPos = make([]LeafIndexAndPos, 0, n)
	for i := uint64(0); i < n; i++ {
		li, err := d.GetU64()
		if err != nil {
			return m, err
		}
		pos, err := d.GetU64()
		if err != nil {
			return m, err
		}
		m.LeafIndexAndPos = append(m.LeafIndexAndPos, LeafIndexAndPos{LeafIndex: li, Pos: pos})
	}
	if m.LeafCount, err = d.GetU64(); err != nil {
		return m, err
	}
	itemCount, err := d.GetCompact()
	if err != nil {
		return m, err
	}
	m.Items = make([][]byte, 0, itemCount)
	for i := uint64(0); i < itemCount; i++ {
		item, err := d.GetFixed(32)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, item)
	}
	return m, nil
}

// OverlayProof is the Substrate-source proof envelope: a state/overlay trie proof
// tagged with the hasher used to build it, per §4.3's Substrate-family internals.
type OverlayProof struct {
	Hasher Hasher
	Nodes  [][]byte
}

func (o OverlayProof) Encode(e *Encoder) {
	e.PutU8(uint8(o.Hasher))
	e.PutCompact(uint64(len(o.Nodes)))
	for _, n := range o.Nodes {
		e.PutBytes(n)
	}
}

func DecodeOverlayProof(d *Decoder) (OverlayProof, error) {
	var o OverlayProof
	tag, err := d.GetU8()
	if err != nil {
		return o, err
	}
	o.Hasher = Hasher(tag)
	count, err := d.GetCompact()
	if err != nil {
		return o, err
	}
	o.Nodes = make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		n, err := d.GetBytes()
		if err != nil {
			return o, err
		}
		o.Nodes = append(o.Nodes, n)
	}
	return o, nil
}
