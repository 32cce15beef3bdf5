package updater

// Staging is the fixed-capacity RAM region SEND_DATA appends into and
// PROGRAM / UPDATE_BOOT_DESC consume from. It is private to
// the Engine; bus clients never see it directly.
type Staging struct {
	data   []byte
	cursor int
}

// NewStaging allocates a staging buffer of the given capacity.
func NewStaging(capacity uint32) *Staging {
	return &Staging{data: make([]byte, capacity)}
}

// Cursor returns the current append position.
func (s *Staging) Cursor() int {
	return s.cursor
}

// Append copies b at the current cursor and advances it. The buffer is
// considered full one byte before its true capacity: cursor+len(b) must
// be strictly less than capacity, not merely fit within it. This
// conservative boundary is preserved verbatim from the source.
func (s *Staging) Append(b []byte) error {
	if s.cursor+len(b) >= len(s.data) {
		return RAMOverflow
	}
	copy(s.data[s.cursor:], b)
	s.cursor += len(b)
	return nil
}

// Reset returns the cursor to zero. Called after every flash commit and
// every sector erase.
func (s *Staging) Reset() {
	s.cursor = 0
}

// Slice returns a read view of the first n staged bytes. The caller
// must ensure n <= Cursor().
func (s *Staging) Slice(n uint32) []byte {
	return s.data[:n]
}
