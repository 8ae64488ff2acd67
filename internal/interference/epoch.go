package interference

// EpochWrapMargin is how far the reset boundary trails the newest signal id
// once the id counter has run half-way around the 32-bit space since the last
// noise floor reset. Removals scheduled more than EpochWrapMargin additions
// earlier are then classified as stale, whether or not they predate a reset;
// the tracker assumes no signal outlives that many later additions.
const EpochWrapMargin uint32 = 0x10000000

// signalEpoch stamps added signals with ids and classifies scheduled removals
// as current or stale relative to the last aggregate reset. Ids wrap; ordering
// uses the signed 32-bit difference.
type signalEpoch struct {
	lastID   uint32
	boundary uint32
}

// next returns a fresh id. If the id would no longer compare as after the
// boundary (which includes being equal to it), the boundary is moved to
// EpochWrapMargin behind the new id.
func (e *signalEpoch) next() uint32 {
	e.lastID++
	id := e.lastID
	if int32(id-e.boundary) <= 0 {
		e.boundary = id - EpochWrapMargin
	}
	return id
}

// reset marks every id handed out so far as stale.
func (e *signalEpoch) reset() {
	e.boundary = e.lastID
}

// current reports whether a removal stamped with id was scheduled after the
// last reset.
func (e *signalEpoch) current(id uint32) bool {
	return int32(id-e.boundary) > 0
}
