package notes

// UpdateIdentifier stamps a mutation with its writer and the writer's
// sequence number at commit time. Identifiers are totally ordered by
// (sequence number, device id), which is what makes whole-row
// last-writer-wins resolution deterministic across replicas.
type UpdateIdentifier struct {
	DeviceID       string
	SequenceNumber int64
}

// Compare returns -1, 0 or 1 ordering this identifier against other.
func (u UpdateIdentifier) Compare(other UpdateIdentifier) int {
	switch {
	case u.SequenceNumber < other.SequenceNumber:
		return -1
	case u.SequenceNumber > other.SequenceNumber:
		return 1
	case u.DeviceID < other.DeviceID:
		return -1
	case u.DeviceID > other.DeviceID:
		return 1
	default:
		return 0
	}
}

// After reports whether this identifier wins over other.
func (u UpdateIdentifier) After(other UpdateIdentifier) bool {
	return u.Compare(other) > 0
}

// Ordering is the result of comparing two version vectors.
type Ordering int

const (
	// OrderingEqual means both vectors record the same knowledge.
	OrderingEqual Ordering = iota
	// OrderingAscending means the receiver knows strictly less.
	OrderingAscending
	// OrderingDescending means the receiver knows strictly more.
	OrderingDescending
	// OrderingConcurrent means each side knows writes the other lacks.
	OrderingConcurrent
)

// VersionVector maps a device UUID to the highest sequence number the
// local replica has observed from that device. A missing device is
// treated as sequence -1, one below the first real write.
type VersionVector map[string]int64

// SequenceFor returns the recorded sequence for a device, or -1 when the
// device has never been observed.
func (v VersionVector) SequenceFor(deviceID string) int64 {
	if sequence, ok := v[deviceID]; ok {
		return sequence
	}
	return -1
}

// Clone returns an independent copy of the vector.
func (v VersionVector) Clone() VersionVector {
	clone := make(VersionVector, len(v))
	for deviceID, sequence := range v {
		clone[deviceID] = sequence
	}
	return clone
}

// Union returns the pointwise maximum of both vectors. Union is
// commutative and idempotent.
func (v VersionVector) Union(other VersionVector) VersionVector {
	merged := v.Clone()
	for deviceID, sequence := range other {
		if sequence > merged.SequenceFor(deviceID) {
			merged[deviceID] = sequence
		}
	}
	return merged
}

// Compare orders two vectors under the partial order over the union of
// their device keys.
func (v VersionVector) Compare(other VersionVector) Ordering {
	ahead := false
	behind := false
	for deviceID, sequence := range v {
		otherSequence := other.SequenceFor(deviceID)
		if sequence > otherSequence {
			ahead = true
		} else if sequence < otherSequence {
			behind = true
		}
	}
	for deviceID, otherSequence := range other {
		if v.SequenceFor(deviceID) < otherSequence {
			behind = true
		}
	}

	switch {
	case ahead && behind:
		return OrderingConcurrent
	case ahead:
		return OrderingDescending
	case behind:
		return OrderingAscending
	default:
		return OrderingEqual
	}
}
