package player

// Unpainted is the cursor value before the first frame is painted.
const Unpainted = -1

// State is the observable state of a Controller. It is exactly one of Loading,
// Error or Resolved:
//
//	switch state := c.Snapshot().(type) {
//	case player.Loading:
//	case player.Error:
//		log.Println(state.Message)
//	case player.Resolved:
//		log.Println(state.Cursor, "of", state.Frames)
//	}
type State interface {
	state()
}

// Loading is the state while the source is being fetched and decoded.
type Loading struct{}

// Error is the state after the source failed to load. It is terminal until
// Start is called again.
type Error struct {
	Message string
}

// Resolved is the state after the source is loaded.
type Resolved struct {
	// Frames is the number of composited frames. It is never 0.
	Frames int
	// Cursor is the index of the frame on the surface, or Unpainted.
	Cursor  int
	Playing bool
	// Width and Height are the natural size of the image in pixels.
	Width  int
	Height int
}

func (Loading) state()  {}
func (Error) state()    {}
func (Resolved) state() {}

// stateKind is the internal tag. The fields of the active variant live on the
// Controller.
type stateKind uint8

const (
	loading stateKind = iota
	failed
	resolved
)

func (k stateKind) String() string {
	switch k {
	case loading:
		return "loading"
	case failed:
		return "error"
	case resolved:
		return "resolved"
	default:
		return "invalid"
	}
}
